package storage

const ruleColumns = `r.id, r.group_id, r.created_by, r.start_date, r.frequency, r.day_rule, r.amount,
	r.category_id, c.type, r.merchant, r.memo, r.is_active`

const transactionColumns = `id, group_id, owner_user_id, type, date, amount, category_id,
	merchant, memo, generated_from_rule_id, generated_for_date, created_at`

const (
	createCategory = `INSERT INTO categories (name, type) VALUES (?, ?) RETURNING id`

	createRule = `INSERT INTO recurring_rules
	(group_id, created_by, start_date, frequency, day_rule, amount, category_id, merchant, memo, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

	updateRule = `UPDATE recurring_rules
SET start_date = ?, frequency = ?, day_rule = ?, amount = ?, category_id = ?,
    merchant = ?, memo = ?, is_active = ?, updated_at = ?
WHERE id = ?`

	deactivateRule = `UPDATE recurring_rules SET is_active = 0, updated_at = ? WHERE id = ?`

	listRules = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.created_by = ?
  AND (? IS NULL OR r.is_active = ?)
  AND (? IS NULL OR r.group_id = ?)
ORDER BY r.is_active DESC, r.id DESC`

	listActiveRules = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.is_active = 1
  AND r.start_date <= ?
  AND (? IS NULL OR r.id = ?)
  AND (? IS NULL OR r.created_by = ?)
ORDER BY r.id`

	getRule = `SELECT ` + ruleColumns + `
FROM recurring_rules r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.id = ?`

	getCategoryType = `SELECT type FROM categories WHERE id = ?`

	// The legacy branch covers rows written before transactions carried
	// their rule link; IS compares NULLs as equal.
	findDuplicate = `SELECT ` + transactionColumns + `
FROM transactions
WHERE (generated_from_rule_id = ? AND generated_for_date = ?)
   OR (generated_from_rule_id IS NULL
       AND owner_user_id = ?
       AND date = ?
       AND amount = ?
       AND category_id IS ?
       AND merchant IS ?
       AND instr(memo, ?) > 0)
ORDER BY id
LIMIT 1`

	insertTransaction = `INSERT INTO transactions
	(group_id, owner_user_id, type, date, amount, category_id, merchant, memo, generated_from_rule_id, generated_for_date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (generated_from_rule_id, generated_for_date) DO NOTHING
RETURNING id`

	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	listUnsynced = `SELECT ` + transactionColumns + `
FROM transactions
WHERE synced_at IS NULL
ORDER BY id
LIMIT ?`

	markSynced = `UPDATE transactions SET synced_at = ? WHERE id = ?`
)
