// Package factor provides an invoice factoring marketplace engine for Go
// applications.
//
// A seller tokenizes an invoice owed by a buyer (the debtor). The buyer
// confirms the debt, the seller lists the invoice at a discount, an
// investor buys it, and at maturity the buyer pays the full amount to
// whoever holds the invoice then. Every invoice moves strictly forward:
//
//	Pending → Verified → Listed → Sold → Settled
//
// factor is designed as a library, not a service. cmd/factord wraps it in
// an HTTP server, but the Engine can be embedded directly:
//
//   - Atomic operations: each mutation commits in full or not at all
//   - Identity gate: operations name the address that must have signed
//   - Built-in token book, or any payment.Transferer you supply
//   - Stores for memory, PostgreSQL, SQLite and MongoDB
//   - Plugins for audit trails, metrics and message-bus publishing
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/factor"
//	    "github.com/xraph/factor/store/postgres"
//	)
//
//	st, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng := factor.New(st)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop(ctx)
//
//	if err := eng.Initialize(ctx, admin); err != nil {
//	    log.Fatal(err)
//	}
//
// # Identity
//
// The default authorizer checks the address an operation requires against
// the verified signers attached to the context:
//
//	ctx = auth.WithSigners(ctx, seller)
//	id, err := eng.Mint(ctx, seller, buyer, factor.MustParseDisplay("100000"), due)
//
// The api package fills that set from X-Signature headers, each an ed25519
// signature over the method, path, timestamp, nonce and body of the request.
// Every mutating operation redeems the signer's nonce in its own
// transaction, so a signed request is accepted at most once.
//
// # Amounts
//
// Amounts are integer base units with seven decimals of display precision,
// so 100000 tokens is NewAmount(1_000_000_000_000). Arithmetic never rounds.
//
// # Errors
//
// Rejections are sentinel-marked. Use the Is* helpers or Code:
//
//	if _, err := eng.Settle(ctx, id, buyer, "USDC"); factor.Code(err) == factor.CodeNotYetDue {
//	    // try again after the due date
//	}
package factor
