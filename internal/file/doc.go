// Package file resolves streams into file views: the joined picture of an
// index stream (the pointer half) and the content stream it names.
//
// Resolution dispatches on the model name the registry assigns to the
// stream's declared model. Index streams resolve to a file half with the
// pointed-at content attached; action streams and folders resolve to a
// single half; every other model resolves content-first with a reverse join
// over the dapp's index set.
//
// Batch resolution never fails the whole call for one bad item. A bad item
// degrades to a Status describing what broke (BrokenContent, BrokenFolder)
// or what is missing (NakedStream), and stays in the result set. Hiding
// corrupt data would make it unfindable, so brokenness is always visible.
package file
