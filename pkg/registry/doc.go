// Package registry implements the poetry token registry: a single-writer state
// machine that mints one non-fungible token per submitted poem, binds the poem
// text to the token forever, and enforces the registry's governance rules
// (maximum poem length, pause switch, admin-only configuration).
//
// Token identifiers are assigned sequentially starting at zero and are never
// reused. Text stored at mint time is immutable. Reads may run concurrently
// and always observe a fully committed state.
//
// # Usage
//
// Open a registry over a store. The deployer becomes the admin the first time
// the store is initialised:
//
//	reg, err := registry.Open(ctx, registry.NewMemoryStore(), "0.0.1001")
//	if err != nil {
//		return err
//	}
//
//	id, err := reg.Publish(ctx, "0.0.2002", "Roses are red")
//	text, err := reg.GetText(id)
//
// Governance operations require the admin account:
//
//	err = reg.SetMaxLength(ctx, "0.0.1001", 1000)
//	err = reg.SetPaused(ctx, "0.0.1001", true)
//
// Errors carry a Kind and match the package sentinels with errors.Is:
//
//	if errors.Is(err, registry.ErrPaused) {
//		...
//	}
//
// # Events
//
// Every committed mutation produces an Event with a monotonically increasing
// sequence number. Handlers registered with WithEventHandler receive events
// in commit order after the mutation is durable.
package registry
