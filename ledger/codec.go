package ledger

import (
	"encoding/binary"
	"time"
)

// Records are fixed-size blobs: every string field owns a slot of its maximum
// length preceded by its actual length.
//
//	profile: format(1) tag(1) owner(1+64) handle(1+15) name(1+50) posts(8) followers(8) following(8)
//	post:    format(1) tag(1) author(1+64) created(8) content(2+280) likes(8) comments(8)
const (
	formatV1 byte = 1

	tagProfile byte = 1
	tagPost    byte = 2

	ProfileSize = 2 + (1 + MaxIdentityLen) + (1 + MaxHandleLen) + (1 + MaxNameLen) + 3*8
	PostSize    = 2 + (1 + MaxIdentityLen) + 8 + (2 + MaxContentLen) + 2*8
)

type recordWriter struct {
	buf []byte
	off int
}

func (w *recordWriter) byte(b byte) {
	w.buf[w.off] = b
	w.off++
}

func (w *recordWriter) uint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

// slot writes s into a region of max bytes behind a one or two byte length.
func (w *recordWriter) slot(s string, max int, wide bool) {
	if wide {
		binary.BigEndian.PutUint16(w.buf[w.off:], uint16(len(s)))
		w.off += 2
	} else {
		w.byte(byte(len(s)))
	}
	copy(w.buf[w.off:w.off+max], s)
	w.off += max
}

type recordReader struct {
	buf []byte
	off int
	err error
}

func (r *recordReader) byte() byte {
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *recordReader) uint64() uint64 {
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *recordReader) slot(max int, wide bool) string {
	var n int
	if wide {
		n = int(binary.BigEndian.Uint16(r.buf[r.off:]))
		r.off += 2
	} else {
		n = int(r.byte())
	}
	if n > max && r.err == nil {
		r.err = storageErrorf("corrupt record: slot length %d exceeds %d", n, max)
		n = max
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += max
	return s
}

func checkHeader(data []byte, size int, tag byte) error {
	if len(data) != size {
		return storageErrorf("corrupt record: %d bytes, want %d", len(data), size)
	}
	if data[0] != formatV1 {
		return storageErrorf("corrupt record: unknown format %d", data[0])
	}
	if data[1] != tag {
		return storageErrorf("corrupt record: tag %d, want %d", data[1], tag)
	}
	return nil
}

// EncodeProfile lays p out in exactly ProfileSize bytes.
func EncodeProfile(p Profile) ([]byte, error) {
	if err := ValidateIdentity("owner", p.Owner); err != nil {
		return nil, err
	}
	if err := ValidateLength("handle", p.Handle, MaxHandleLen); err != nil {
		return nil, err
	}
	if err := ValidateLength("name", p.Name, MaxNameLen); err != nil {
		return nil, err
	}
	w := recordWriter{buf: make([]byte, ProfileSize)}
	w.byte(formatV1)
	w.byte(tagProfile)
	w.slot(string(p.Owner), MaxIdentityLen, false)
	w.slot(p.Handle, MaxHandleLen, false)
	w.slot(p.Name, MaxNameLen, false)
	w.uint64(p.PostCount)
	w.uint64(p.FollowerCount)
	w.uint64(p.FollowingCount)
	return w.buf, nil
}

// DecodeProfile is the inverse of EncodeProfile. The returned Key is derived
// from the stored owner.
func DecodeProfile(data []byte) (Profile, error) {
	if err := checkHeader(data, ProfileSize, tagProfile); err != nil {
		return Profile{}, err
	}
	r := recordReader{buf: data, off: 2}
	var p Profile
	p.Owner = Identity(r.slot(MaxIdentityLen, false))
	p.Handle = r.slot(MaxHandleLen, false)
	p.Name = r.slot(MaxNameLen, false)
	p.PostCount = r.uint64()
	p.FollowerCount = r.uint64()
	p.FollowingCount = r.uint64()
	if r.err != nil {
		return Profile{}, r.err
	}
	p.Key = ProfileKey(p.Owner)
	return p, nil
}

// EncodePost lays p out in exactly PostSize bytes. CreatedAt keeps second
// precision.
func EncodePost(p Post) ([]byte, error) {
	if err := ValidateIdentity("author", p.Author); err != nil {
		return nil, err
	}
	if err := ValidateLength("content", p.Content, MaxContentLen); err != nil {
		return nil, err
	}
	w := recordWriter{buf: make([]byte, PostSize)}
	w.byte(formatV1)
	w.byte(tagPost)
	w.slot(string(p.Author), MaxIdentityLen, false)
	w.uint64(uint64(p.CreatedAt.Unix()))
	w.slot(p.Content, MaxContentLen, true)
	w.uint64(p.LikeCount)
	w.uint64(p.CommentCount)
	return w.buf, nil
}

// DecodePost is the inverse of EncodePost. The key is not part of the blob and
// is left empty.
func DecodePost(data []byte) (Post, error) {
	if err := checkHeader(data, PostSize, tagPost); err != nil {
		return Post{}, err
	}
	r := recordReader{buf: data, off: 2}
	var p Post
	p.Author = Identity(r.slot(MaxIdentityLen, false))
	p.CreatedAt = time.Unix(int64(r.uint64()), 0).UTC()
	p.Content = r.slot(MaxContentLen, true)
	p.LikeCount = r.uint64()
	p.CommentCount = r.uint64()
	if r.err != nil {
		return Post{}, r.err
	}
	return p, nil
}
