// Package coordinator is the single-writer authority over the bookmark
// forest.
//
// A Coordinator loads the forest from a storage.Store on Start (adopting a
// seed when the store is empty) and then serializes every change through one
// event loop:
//
//  1. apply the Intent to the current forest via the tree package
//  2. on failure, return the error; nothing else happens
//  3. persist the new forest; an IO failure rejects the intent and keeps
//     the previous forest in memory
//  4. swap the forest in, bump the revision and publish an Update
//
// Subscribers never block the loop. A slow subscriber has its older pending
// updates replaced by newer ones.
//
// Example Usage:
//
//	c := coordinator.New(coordinator.Options{Store: store, Logger: logger})
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	res, err := c.Apply(ctx, sessionID, coordinator.Intent{
//	    Op: coordinator.OpRename, ID: "42", Name: "Docs",
//	})
package coordinator
