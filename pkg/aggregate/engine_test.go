package aggregate

import (
	"fmt"
	"testing"

	"meshnode/pkg/models"
	"meshnode/pkg/store"
)

func openEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func aggMsg(sender, hash string, ts int64) *models.Message {
	return &models.Message{
		Type:     models.TypeAggregate,
		Sender:   sender,
		Chain:    "ETH",
		Time:     ts,
		ItemHash: hash,
		ItemType: models.ItemInline,
		HashType: models.HashSHA256,
	}
}

// permutations returns every ordering of indices 0..n-1.
func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, sub := range permutations(n - 1) {
		for i := 0; i <= len(sub); i++ {
			p := make([]int, 0, n)
			p = append(p, sub[:i]...)
			p = append(p, n-1)
			p = append(p, sub[i:]...)
			out = append(out, p)
		}
	}
	return out
}

func TestAggregateConvergesUnderAnyOrder(t *testing.T) {
	type msg struct {
		hash    string
		ts      int64
		content string
	}
	msgs := []msg{
		{"h-a", 100, `{"name":"alice","bio":"v1"}`},
		{"h-b", 200, `{"name":"alice2"}`},
		{"h-c", 150, `{"bio":"v2","site":"example.org"}`},
	}

	for pi, perm := range permutations(len(msgs)) {
		eng, st := openEngine(t)
		sender := fmt.Sprintf("sender-%d", pi)
		for _, idx := range perm {
			mm := msgs[idx]
			if err := eng.Apply(aggMsg(sender, mm.hash, mm.ts), []byte(mm.content)); err != nil {
				t.Fatalf("perm %v apply %s: %v", perm, mm.hash, err)
			}
		}

		name, err := st.GetAggregate(sender, "name")
		if err != nil {
			t.Fatalf("perm %v: %v", perm, err)
		}
		if name.Content != "alice2" || name.LastUpdateTime != 200 || name.LastHash != "h-b" {
			t.Fatalf("perm %v name diverged: %+v", perm, name)
		}
		bio, err := st.GetAggregate(sender, "bio")
		if err != nil {
			t.Fatalf("perm %v: %v", perm, err)
		}
		if bio.Content != "v2" || bio.LastUpdateTime != 150 {
			t.Fatalf("perm %v bio diverged: %+v", perm, bio)
		}
		site, err := st.GetAggregate(sender, "site")
		if err != nil || site.Content != "example.org" {
			t.Fatalf("perm %v site diverged: %+v %v", perm, site, err)
		}
	}
}

func TestAggregateEqualTimeTieBreak(t *testing.T) {
	eng, st := openEngine(t)
	a := aggMsg("s", "aaaa", 100)
	b := aggMsg("s", "bbbb", 100)

	if err := eng.Apply(b, []byte(`{"k":"fromB"}`)); err != nil {
		t.Fatalf("apply b: %v", err)
	}
	if err := eng.Apply(a, []byte(`{"k":"fromA"}`)); err != nil {
		t.Fatalf("apply a: %v", err)
	}
	doc, err := st.GetAggregate("s", "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Content != "fromA" || doc.LastHash != "aaaa" {
		t.Fatalf("smaller hash must win the tie: %+v", doc)
	}
}

func TestAggregateIsolatedPerAddress(t *testing.T) {
	eng, st := openEngine(t)
	if err := eng.Apply(aggMsg("alice", "h1", 10), []byte(`{"k":"av"}`)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := eng.Apply(aggMsg("bob", "h2", 20), []byte(`{"k":"bv"}`)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	a, _ := st.GetAggregate("alice", "k")
	b, _ := st.GetAggregate("bob", "k")
	if a.Content != "av" || b.Content != "bv" {
		t.Fatalf("addresses must not share namespaces: %+v %+v", a, b)
	}
}

func TestApplyPostIdempotent(t *testing.T) {
	eng, st := openEngine(t)
	m := &models.Message{Type: models.TypePost, Sender: "a", Channel: "C", Time: 5, ItemHash: "p1"}
	content := []byte(`{"type":"blog","body":"hello"}`)

	if err := eng.Apply(m, content); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := eng.Apply(m, content); err != nil {
		t.Fatalf("repeat apply must be a no-op: %v", err)
	}
	rec, err := st.GetPost("p1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if rec.PostType != "blog" || rec.Address != "a" {
		t.Fatalf("post record wrong: %+v", rec)
	}
}

func TestApplyStoreIdempotent(t *testing.T) {
	eng, st := openEngine(t)
	m := &models.Message{Type: models.TypeStore, Sender: "a", Time: 9, ItemHash: "f1", ItemType: models.ItemIPFS}
	if err := eng.Apply(m, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := eng.Apply(m, nil); err != nil {
		t.Fatalf("repeat apply must be a no-op: %v", err)
	}
	rec, err := st.GetFile("f1")
	if err != nil || rec.Address != "a" {
		t.Fatalf("file record wrong: %+v %v", rec, err)
	}
}

func TestApplyUnknownType(t *testing.T) {
	eng, _ := openEngine(t)
	err := eng.Apply(&models.Message{Type: "FORGET", ItemHash: "x"}, nil)
	if err == nil {
		t.Fatalf("unknown type must error")
	}
}
