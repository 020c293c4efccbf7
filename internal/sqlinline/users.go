package sqlinline

const QSelectUserByID = `--sql a12aade3-0db5-4426-ba1c-84b8a0ae8c8e
select id, email, tier, billing_status, operations_used, period_start, credits, created_at, updated_at
from users
where id = $1::text
limit 1;
`

// QEnsureUser inserts the user when missing and always returns the stored row.
const QEnsureUser = `--sql 9399f752-9fc7-4802-b8b9-d617e1f296a1
insert into users (id, email, tier, billing_status, operations_used, period_start, credits, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, 0, now(), $5::int, now(), now())
on conflict (id) do update set
    email = case when users.email = '' then excluded.email else users.email end
returning id, email, tier, billing_status, operations_used, period_start, credits, created_at, updated_at;
`

const QUpdateUserPlan = `--sql 76bce2a2-47b5-4426-ad3b-213b4061c7b1
update users set
    tier = $2::text,
    billing_status = $3::text,
    operations_used = case when $4::bool then 0 else operations_used end,
    period_start = case when $4::bool then now() else period_start end,
    updated_at = now()
where id = $1::text
returning id, email, tier, billing_status, operations_used, period_start, credits, created_at, updated_at;
`

// QLockUser serializes usage commits for one user inside a transaction.
const QLockUser = `--sql 0de852eb-2a00-41a4-b21b-d4c6f60ec65b
select id
from users
where id = $1::text
for update;
`

const QIncrementUsage = `--sql c62b862f-a3a3-40d0-bf58-75568669709a
update users set
    operations_used = operations_used + $2::int,
    updated_at = now()
where id = $1::text
returning id, email, tier, billing_status, operations_used, period_start, credits, created_at, updated_at;
`
