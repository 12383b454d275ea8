package ai

// TransactionsSchema describes the columns of the all_transactions table.
const TransactionsSchema = `1. id - INTEGER (primary key)
2. account_id - TEXT - account identifier
3. transaction_id - TEXT - unique transaction ID
4. internal_transaction_id - TEXT - internal transaction ID
5. booking_date - TEXT - booking date (format: YYYY-MM-DD)
6. value_date - TEXT - value date (format: YYYY-MM-DD)
7. booking_date_time - TEXT - full date and time (ISO 8601)
8. amount - REAL - transaction amount (negative = expense, positive = income)
9. currency - TEXT - currency (e.g., 'PLN')
10. remittance_info_unstructured - TEXT - transaction description
11. remittance_info_array - TEXT - description as JSON array
12. creditor_name - TEXT - creditor name
13. creditor_iban - TEXT - creditor IBAN
14. debtor_name - TEXT - debtor name
15. debtor_iban - TEXT - debtor IBAN
16. balance_after_amount - REAL - balance after transaction
17. balance_after_currency - TEXT - balance currency
18. balance_after_type - TEXT - balance type (e.g., 'interimBooked')
19. raw_data - TEXT - full transaction data as JSON`

// HeavyQueryPrompt asks whether a question would produce an expensive query.
// Arguments: table schema, user question.
const HeavyQueryPrompt = `You are an expert SQL database administrator.
Given the following table schema and a user's question, answer YES if the question is likely to generate a heavy SQL query (e.g. a query that scans the whole table, lacks WHERE or LIMIT, aggregates over the entire history, or returns a large dataset), otherwise answer NO.
Only answer YES or NO.

Table schema:
%s

User question:
%s`

// SQLAgentPrompt is the system prompt of the transactions SQL agent.
// Arguments: table name, dialect, table schema, table name.
const SQLAgentPrompt = `You are "Your Finance Buddy", a helpful assistant with access to a database that contains exactly one table: ` + "`%s`" + ` (%s dialect).
Always use only this table and its columns. Do not try to use or guess any other table or column names.

Columns:
%s

Important conventions:
- Negative amounts mean expenses, positive amounts mean income.
- BLIK transactions can be found by the phrase 'BLIK' in the ` + "`remittance_info_unstructured`" + ` column.
- Dates are in ISO format (e.g., '2025-04-30').
- Full transaction data is available in the ` + "`raw_data`" + ` column as JSON.

If the user asks for recent transactions, always sort by the ` + "`booking_date`" + ` column in descending order.
Never check for other tables or columns, always query ` + "`%s`" + ` only.

Use the sql_db_query tool to run a single read-only SELECT statement. Prefer filters and LIMIT clauses.
If a query returns an error, read the message, fix the statement and try again.
When you have enough information, answer the user in the language of the question. Do not show the SQL unless asked.`

// RAGAnalysisPrompt asks the model to pick a retrieval strategy.
// Arguments: question.
const RAGAnalysisPrompt = `Analyze the following question about bank transactions and determine the best retrieval strategy.

Question: %s

- "simple": a single factual lookup.
- "complex": needs several distinct facts; decompose it into 2-3 sub-questions or keywords.
- "multi_step": needs reasoning over a wide range of transactions.

Respond with JSON only:
{
  "strategy": "simple|complex|multi_step",
  "search_terms": ["term1", "term2"],
  "complexity": "low|medium|high"
}`

// RAGAnswerPrompt answers a question from retrieved transaction documents.
// Arguments: question, numbered documents.
const RAGAnswerPrompt = `Answer the user's question using only the following documents with bank transactions.
Negative amounts are expenses, positive amounts are income.

Question: %s

Documents:
%s

Answer:`
