package zmailbox

import "strings"

// Flags is the server's compact flag string, one character per flag.
type Flags string

// Item and folder flag characters.
const (
	FlagUnread          byte = 'u'
	FlagFlagged         byte = 'f'
	FlagAttachment      byte = 'a'
	FlagReplied         byte = 'r'
	FlagSentByMe        byte = 's'
	FlagForwarded       byte = 'w'
	FlagDraft           byte = 'd'
	FlagDeleted         byte = 'x'
	FlagHighPriority    byte = '!'
	FlagLowPriority     byte = '?'
	FlagCheckedInUI     byte = '#'
	FlagExcludeFreeBusy byte = 'b'
	FlagSyncFolder      byte = 'y'
	FlagNoInferiors     byte = 'o'
)

// Has reports whether flag c is set.
func (f Flags) Has(c byte) bool {
	return strings.IndexByte(string(f), c) >= 0
}

// With returns f with flag c set.
func (f Flags) With(c byte) Flags {
	if f.Has(c) {
		return f
	}
	return f + Flags(c)
}

// Without returns f with flag c cleared.
func (f Flags) Without(c byte) Flags {
	return Flags(strings.ReplaceAll(string(f), string(c), ""))
}
