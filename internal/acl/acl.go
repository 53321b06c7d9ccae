// Package acl evaluates page-level read/write permission.
//
// A page's access-control pair is two principal lists taken from its metadata
// header. An empty read list (or the marker "all") makes the page public; an
// empty write list means any signed-in user may edit; the marker "all" on the
// write list opens editing to anonymous visitors too. Admins always pass.
package acl

// User is the principal a request acts as. A nil *User is an anonymous
// visitor.
type User struct {
	Email string
	Admin bool
}

const Everyone = "all"

// CanRead reports whether user may read a page with the given read list.
func CanRead(readList []string, user *User) bool {
	if len(readList) == 0 || contains(readList, Everyone) {
		return true
	}
	if user == nil {
		return false
	}
	return user.Admin || contains(readList, user.Email)
}

// CanWrite reports whether user may write a page with the given write list.
func CanWrite(writeList []string, user *User) bool {
	if contains(writeList, Everyone) {
		return true
	}
	if user == nil {
		return false
	}
	if user.Admin {
		return true
	}
	if len(writeList) == 0 {
		return true
	}
	return contains(writeList, user.Email)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
