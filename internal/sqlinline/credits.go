package sqlinline

const QSelectCredits = `--sql 3e2b7745-6071-4e9b-840c-8f42d0858477
select credits
from users
where id = $1::text;
`

// QConsumeCredits only matches when the balance covers the amount.
const QConsumeCredits = `--sql b4f205f0-18b6-4f34-8690-ba6b13a1932e
update users set
    credits = credits - $2::int,
    updated_at = now()
where id = $1::text and credits >= $2::int
returning credits;
`

const QAddCredits = `--sql ad5ad313-2f68-4d29-a79d-0395c722b846
update users set
    credits = credits + $2::int,
    updated_at = now()
where id = $1::text
returning credits;
`

const QInsertCreditGrant = `--sql 1afd4965-3408-4602-873b-d55bd406aeab
insert into credit_grants (payment_ref, user_id, amount, created_at)
values ($1::text, $2::text, $3::int, now())
on conflict (payment_ref) do nothing
returning true;
`
