package postgres

const ruleColumns = `r.id, r.group_id, r.created_by, r.start_date, r.frequency, r.day_rule, r.amount,
	r.category_id, c.type, r.merchant, r.memo, r.is_active`

const transactionColumns = `id, group_id, owner_user_id, type, date, amount, category_id,
	merchant, memo, generated_from_rule_id, generated_for_date, created_at`

const (
	createCategory = `INSERT INTO categories (name, type) VALUES ($1, $2) RETURNING id`

	createRule = `INSERT INTO recurring_rules
	(group_id, created_by, start_date, frequency, day_rule, amount, category_id, merchant, memo, is_active)
VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

	updateRule = `UPDATE recurring_rules
SET start_date = $1::date, frequency = $2, day_rule = $3, amount = $4, category_id = $5,
    merchant = $6, memo = $7, is_active = $8, updated_at = now()
WHERE id = $9`

	deactivateRule = `UPDATE recurring_rules SET is_active = FALSE, updated_at = now() WHERE id = $1`

	listRules = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.created_by = $1
  AND ($2::boolean IS NULL OR r.is_active = $2)
  AND ($3::bigint IS NULL OR r.group_id = $3)
ORDER BY r.is_active DESC, r.id DESC`

	listActiveRules = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.is_active
  AND r.start_date <= $1::date
  AND ($2::bigint IS NULL OR r.id = $2)
  AND ($3::bigint IS NULL OR r.created_by = $3)
ORDER BY r.id`

	getRule = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.id = $1`

	getCategoryType = `SELECT type FROM categories WHERE id = $1`

	findDuplicate = `SELECT ` + transactionColumns + `
FROM transactions
WHERE (generated_from_rule_id = $1 AND generated_for_date = $2::date)
   OR (generated_from_rule_id IS NULL
       AND owner_user_id = $3
       AND date = $2::date
       AND amount = $4
       AND category_id IS NOT DISTINCT FROM $5::bigint
       AND merchant IS NOT DISTINCT FROM $6::text
       AND strpos(memo, $7) > 0)
ORDER BY id
LIMIT 1`

	insertTransaction = `INSERT INTO transactions
	(group_id, owner_user_id, type, date, amount, category_id, merchant, memo, generated_from_rule_id, generated_for_date)
VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10::date)
ON CONFLICT (generated_from_rule_id, generated_for_date) DO NOTHING
RETURNING id, created_at`

	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	listUnsynced = `SELECT ` + transactionColumns + `
FROM transactions
WHERE synced_at IS NULL
ORDER BY id
LIMIT $1`

	markSynced = `UPDATE transactions SET synced_at = now() WHERE id = $1`
)
