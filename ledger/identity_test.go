package ledger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedKeysArePinned(t *testing.T) {
	var b strings.Builder
	fmt.Fprintf(&b, "profile(alice) %s\n", ProfileKey("alice"))
	fmt.Fprintf(&b, "post(alice, 0) %s\n", PostKey("alice", 0))
	fmt.Fprintf(&b, "post(alice, 1) %s\n", PostKey("alice", 1))
	fmt.Fprintf(&b, "profile(bob) %s\n", ProfileKey("bob"))
	newGoldie(t).Assert(t, "derived_keys", []byte(b.String()))
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, ProfileKey("alice"), ProfileKey("alice"))
	assert.Equal(t, PostKey("alice", 3), PostKey("alice", 3))
	assert.NotEqual(t, PostKey("alice", 3), PostKey("alice", 4))
	assert.NotEqual(t, PostKey("alice", 0), PostKey("bob", 0))
}

func TestDeriveKeySeparatesComponents(t *testing.T) {
	assert.NotEqual(t,
		DeriveKey(KindPost, []byte("ab"), []byte("c")),
		DeriveKey(KindPost, []byte("a"), []byte("bc")),
	)
	// same input under another kind is another key
	profile := DeriveKey(KindProfile, []byte("alice"))
	post := DeriveKey(KindPost, []byte("alice"))
	assert.NotEqual(t, profile[len("profile:"):], post[len("post:"):])
}

func TestKeyKind(t *testing.T) {
	assert.Equal(t, KindProfile, ProfileKey("alice").Kind())
	assert.Equal(t, KindPost, PostKey("alice", 0).Kind())
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey(string(PostKey("alice", 7)))
	require.NoError(t, err)
	assert.Equal(t, PostKey("alice", 7), key)

	for _, bad := range []string{
		"",
		"post",
		"post:abc",
		"tweet:" + strings.Repeat("a", 64),
		"post:" + strings.Repeat("z", 64),
	} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrNotFound, bad)
	}
}
