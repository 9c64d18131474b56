package threadregistry

import "testing"

func TestRegisterDeregister(t *testing.T) {
	r := New()

	id, err := r.Register()
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsRegistered(id) {
		t.Fatal("expected id to be registered")
	}

	if err := r.Deregister(id); err != nil {
		t.Fatal(err)
	}
	if r.IsRegistered(id) {
		t.Fatal("expected id to no longer be registered")
	}
}

func TestRegisterIdsAreUnique(t *testing.T) {
	r := New()

	id1, _ := r.Register()
	id2, _ := r.Register()
	if id1 == id2 {
		t.Fatal("expected distinct handler ids")
	}
}

func TestGlobalIsLazilyInitializedOnce(t *testing.T) {
	g1 := Global()
	g2 := Global()
	if g1 != g2 {
		t.Fatal("expected Global() to return the same registry instance")
	}
}
