// Package scm defines the narrow interfaces through which dDS talks to the
// authoritative source-control storage: the immutable commit graph and the
// content-addressed blob store. Both are external collaborators - dDS never
// constructs commits or moves bookmarks, it only reads them.
//
// The interfaces are deliberately small so that the derivation core can be
// tested against the in-memory implementation in scm/memgraph and deployed
// against whatever blob/metadata backend a repository actually uses.
//
// Consistency assumptions:
//   - Graph reads are strongly consistent: a commit returned by GetCommit has
//     all parents reachable via ListParents.
//   - Commits are immutable. Two GetCommit calls for the same id always return
//     identical content.
//   - Bookmarks are mutable pointers maintained by an external writer; a read
//     returns some recent value, not necessarily the newest one.
package scm
