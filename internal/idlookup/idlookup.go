// Package idlookup resolves the uid/gid name oracle a tar archive's
// ustar uname/gname fields need: given a name recorded in the archive,
// what numeric id does this host's identity database say it maps to.
// The original C implementation leans on libc's name service switch
// (getpwnam/getgrnam); os/user is the Go standard library's equivalent
// entry point into the same host databases (nsswitch, /etc/passwd, etc),
// so unlike the rest of the ambient stack this one concern has no
// idiomatic third-party replacement in the example corpus to prefer over
// it.
package idlookup

import (
	"os/user"
	"strconv"
)

// User resolves name to a uid via the host's user database. ok is false
// if the name is unknown or its uid field doesn't parse as a number.
func User(name string) (uid uint32, ok bool) {
	if name == "" {
		return 0, false
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Group resolves name to a gid via the host's group database.
func Group(name string) (gid uint32, ok bool) {
	if name == "" {
		return 0, false
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// UserName is the reverse direction: the name the sync pass should stamp
// into a ustar header's uname field for uid, or "" if the host's identity
// database has no entry for it.
func UserName(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return ""
	}
	return u.Username
}

// GroupName is UserName's group equivalent, for gname.
func GroupName(gid uint32) string {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return ""
	}
	return g.Name
}
