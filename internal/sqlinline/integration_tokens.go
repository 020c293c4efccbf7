package sqlinline

// Collaborator API keys rotated by operators through cmd/integrationkey.

const QSelectIntegrationToken = `--sql 0e9bb543-cf29-4019-bede-85c496c1ac1b
select token
from integration_tokens
where provider = $1::text and token <> ''
limit 1;
`

// QUpsertIntegrationToken replaces the token and merges properties so audit
// fields from earlier rotations survive.
const QUpsertIntegrationToken = `--sql 1b5551ed-07a7-4ff1-a1bf-45d94cfb992d
insert into integration_tokens (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
