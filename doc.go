// Package sekai implements an archetype based Entity Component System with
// relationships and a query engine.
//
// Features:
//   - Entities with the same set of ids share a table. Data-bearing ids get
//     a column backed by a Go slice.
//   - Pairs (relationship, target) are ids too. Wildcards match them in
//     queries and removals.
//   - Tables are linked by add/remove edges, so moving an entity is a map
//     lookup after the first transition.
//   - Queries are compiled into a small program evaluated by a backtracking
//     VM. They support variables, Not/Optional/Or, traversal of relationships
//     such as IsA and ChildOf, and component inheritance.
//   - Queries that only look at the type of $this can keep a cache of
//     matched tables that is updated as tables are created and deleted.
package sekai
