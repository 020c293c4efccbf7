package sqlinline

// QInsertArtifact skips rows whose id is already present. The affected row
// count tells the caller whether the artifact is new.
const QInsertArtifact = `--sql e3c3517a-7153-4b1f-bd41-203c9a345105
insert into user_artifacts (id, user_id, batch_id, operation_index, url, size_bytes, duration_seconds, prompt, metadata, created_at)
values ($1::text, $2::text, $3::text, $4::int, $5::text, $6::bigint, $7::int, $8::text, $9::jsonb, $10::timestamptz)
on conflict (id) do nothing;
`

const QListArtifacts = `--sql c8a71b83-c6f1-43aa-b9eb-69d945d79677
select id, batch_id, operation_index, url, size_bytes, duration_seconds, prompt, metadata, created_at
from user_artifacts
where user_id = $1::text
order by created_at desc, id desc
limit nullif($2::int, 0);
`

const QDeleteArtifact = `--sql c0bbecb1-ca44-4492-88b9-5afc1b761f7e
delete from user_artifacts
where user_id = $1::text and id = $2::text;
`
