// Package protocol implements the textual sub-protocol that multiplexes
// group chat semantics over a transport whose only primitive is
// point-to-point text delivery.
//
// A group message is the plain chat text wrapped in a literal envelope:
//
//	[iptux-group:NAME] body
//
// A group invite is a group message whose body carries the initial member
// list, letting receivers bootstrap a group they have never seen:
//
//	[iptux-group:NAME] 📢 Group created — members: ip1,ip2,ip3
//
// The format is a fixed byte layout with no escaping; it must stay
// bit-compatible with existing iptux clients on the wire.
package protocol

import "strings"

const (
	// GroupPrefix marks a message as belonging to a named group.
	GroupPrefix = "[iptux-group:"
	// GroupSep terminates the group name inside the envelope.
	GroupSep = ']'
	// InvitePrefix starts the body of a group invite message.
	InvitePrefix = "📢 Group created — members: "
)

// Wrap encloses body in the group envelope for groupName.
//
// The name is not escaped: a group name containing ']' produces a message
// the receiving decoder cannot parse. That limitation is inherited from the
// wire format and deliberately not papered over here.
func Wrap(groupName, body string) string {
	return GroupPrefix + groupName + string(GroupSep) + " " + body
}

// TryUnwrap decodes a group envelope, returning the group name, the body
// and whether message was an envelope at all.
//
// The body starts two bytes after the separator. When a nonconforming
// sender omits the space after ']' the first body character is lost; that
// is the observed wire contract and is reproduced faithfully.
func TryUnwrap(message string) (groupName, body string, ok bool) {
	if !strings.HasPrefix(message, GroupPrefix) {
		return "", "", false
	}
	sep := strings.IndexByte(message, GroupSep)
	if sep < 0 {
		return "", "", false
	}
	groupName = message[len(GroupPrefix):sep]
	if sep+2 <= len(message) {
		body = message[sep+2:]
	}
	return groupName, body, true
}

// WrapInvite builds the invite announcing a new group to its members.
func WrapInvite(groupName string, members []string) string {
	return Wrap(groupName, InvitePrefix+strings.Join(members, ","))
}

// TryParseInvite extracts the member list from an invite body.
//
// Empty segments are discarded and order is preserved; a trailing segment
// without a trailing comma is included. Returns ok=false when body is not
// an invite.
func TryParseInvite(body string) (members []string, ok bool) {
	if !strings.HasPrefix(body, InvitePrefix) {
		return nil, false
	}
	for _, segment := range strings.Split(body[len(InvitePrefix):], ",") {
		if segment != "" {
			members = append(members, segment)
		}
	}
	return members, true
}
