/*
Package backend produces generated content for neurons under one of three
strategies: Mock (deterministic trigger table, zero cost), Real (a paid
generation service behind ports.BackendClient) and Hybrid (Real with a
mandatory Mock fallback). The strategy is chosen once at configuration time;
"auto" resolves to Real or Mock at that point.

Every Real call goes through the Ledger, which exposes only try-reserve-then-commit
operations so concurrent neurons observe a consistent running total.
*/
package backend
