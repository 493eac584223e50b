// Package secrets redacts secrets from memory text before it is embedded or
// persisted.
//
// Redaction is driven by an ordered table of named regular-expression rules.
// Each match is replaced by a marker naming the rule, e.g. [REDACTED:api_key];
// the matched value is never kept. Rules run one after another over the output
// of the previous rule, so an earlier rule wins any overlap.
//
// Detection is pattern based and therefore best effort. It reduces the chance
// of a credential landing in git notes or the vector index; it is not a
// security guarantee.
package secrets
