// Package catalog holds the fixed set of report queries run for every job.
// The queries target the music store schema (tracks, genres, customers,
// invoices, invoice_items, albums) and take no parameters.
package catalog

type Entry struct {
	Label string
	SQL   string
}

// Queries returns the catalog in execution order. The slice is a copy; callers
// may keep or reorder it without affecting other jobs.
func Queries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

var entries = []Entry{
	{
		Label: "Query all tracks",
		SQL: `
SELECT TrackId, t.Name, Composer, g.Name AS Genre
FROM tracks t JOIN genres g ON t.genreId = g.genreId`,
	},
	{
		Label: "Query all customers and count albums",
		SQL: `
SELECT CustomerId, FullName, Phone, Email, FullAddress,
       COUNT(DISTINCT albumId) AS albums_ordered
FROM (
    SELECT c.CustomerId, FirstName || ' ' || LastName AS FullName, Phone, Email,
           TRIM(
               COALESCE(Address || ' | ', '') ||
               COALESCE(City || ' | ', '') ||
               COALESCE(State || ' | ', '') ||
               COALESCE(Country || ' | ', '') ||
               COALESCE(PostalCode || ' ', '')
           ) AS FullAddress,
           a.albumId
    FROM customers c
    LEFT JOIN invoices i ON c.customerId = i.customerId
    LEFT JOIN invoice_items ii ON i.invoiceId = ii.invoiceId
    LEFT JOIN tracks t ON ii.trackId = t.trackId
    LEFT JOIN albums a ON t.albumId = a.albumId
) t1
GROUP BY CustomerId, FullName, Phone, Email, FullAddress`,
	},
	{
		Label: "Count customers by domains in each country",
		SQL: `
SELECT SUBSTR(domain, 1, INSTR(domain, '.') - 1) AS short_domain, country, COUNT(*)
FROM (
    SELECT SUBSTR(email, INSTR(email, '@') + 1) AS domain, country
    FROM customers
) t1
GROUP BY SUBSTR(domain, 1, INSTR(domain, '.') - 1), country`,
	},
	{
		Label: "Count albums ordered per country",
		SQL: `
SELECT Country, COUNT(*) AS albums
FROM (
    SELECT DISTINCT Country, i.invoiceId, a.albumId
    FROM customers c
    LEFT JOIN invoices i ON c.customerId = i.customerId
    LEFT JOIN invoice_items ii ON i.invoiceId = ii.invoiceId
    LEFT JOIN tracks t ON ii.trackId = t.trackId
    LEFT JOIN albums a ON t.albumId = a.albumId
) t1
GROUP BY Country`,
	},
	{
		Label: "Most ordered album per country",
		SQL: `
WITH albums_per_country AS (
    SELECT Country, albumId, title, COUNT(*) AS albums
    FROM (
        SELECT DISTINCT Country, i.invoiceId, a.albumId, a.title
        FROM customers c
        LEFT JOIN invoices i ON c.customerId = i.customerId
        LEFT JOIN invoice_items ii ON i.invoiceId = ii.invoiceId
        LEFT JOIN tracks t ON ii.trackId = t.trackId
        LEFT JOIN albums a ON t.albumId = a.albumId
    ) t1
    GROUP BY Country, albumId, title
)
SELECT * FROM albums_per_country
WHERE (Country, albums) IN (
    SELECT Country, MAX(albums) FROM albums_per_country GROUP BY Country
)`,
	},
	{
		Label: "Most ordered album in USA since 2011",
		SQL: `
WITH albums_per_country AS (
    SELECT albumId, title, COUNT(*) AS albums
    FROM (
        SELECT DISTINCT Country, i.invoiceId, a.albumId, a.title
        FROM customers c
        LEFT JOIN invoices i ON c.customerId = i.customerId
        LEFT JOIN invoice_items ii ON i.invoiceId = ii.invoiceId
        LEFT JOIN tracks t ON ii.trackId = t.trackId
        LEFT JOIN albums a ON t.albumId = a.albumId
        WHERE Country = 'USA'
          AND strftime('%Y', i.invoiceDate) >= 2011
    ) t1
    GROUP BY albumId, title
)
SELECT * FROM albums_per_country
WHERE (albums) IN (SELECT MAX(albums) FROM albums_per_country)`,
	},
	{
		Label: "Customers with an invoice missing 2 or more items",
		SQL: `
SELECT * FROM (
    SELECT DISTINCT c.*,
        CASE WHEN i.CustomerId IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.InvoiceDate IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.BillingAddress IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.BillingCity IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.BillingState IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.BillingCountry IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.BillingPostalCode IS NULL THEN 1 ELSE 0 END +
        CASE WHEN i.Total IS NULL THEN 1 ELSE 0 END AS missing
    FROM invoices i
    JOIN customers c ON i.customerId = c.customerId
)
WHERE missing >= 2`,
	},
}
