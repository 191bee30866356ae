/*
Package item defines the unit of desired state managed on a node.

An item is identified by "type:name" (for example `file:/etc/motd` or
`pkg_apt:nginx`). Bundles declare items as Declarations whose attributes are
either literals or resolvers over the node's effective metadata; Instantiate
evaluates every resolver exactly once and produces an Item with plain values.

Relations between items (needs, needed_by, triggers, triggered_by) are
expressed as Selectors, which may name a concrete item or a whole class of
items (`bundle:nginx`, `tag:web`, `pkg_apt:`).
*/
package item
