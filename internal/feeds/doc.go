// Package feeds retrieves RSS and Atom documents and reduces them to the
// item shape ingestion stores: url, title, publish time, a readable excerpt,
// and the best image the feed advertises.
package feeds
