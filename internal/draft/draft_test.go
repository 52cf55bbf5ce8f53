package draft

import (
	"testing"
	"time"

	"vacenf.org/internal/registry"
)

func TestPutGetUpdateDelete(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	id := s.Put(Registration{Nome: "Maria", Email: "maria@vacenf.org"})
	reg, ok := s.Get(id)
	if !ok || reg.Nome != "Maria" {
		t.Fatalf("staged draft not found: %+v ok=%v", reg, ok)
	}

	reg.Endereco = registry.Address{CEP: "01310100", Localidade: "São Paulo", UF: "SP", Numero: "10"}
	reg.HasAddress = true
	if !s.Update(id, reg) {
		t.Fatal("update failed for live draft")
	}
	reg, _ = s.Get(id)
	if !reg.HasAddress || reg.Endereco.Numero != "10" {
		t.Fatalf("address step not staged: %+v", reg)
	}

	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Fatal("deleted draft still present")
	}
}

func TestExpiredDraftIsGone(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	defer s.Close()

	id := s.Put(Registration{Nome: "Ana"})
	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Get(id); ok {
		t.Fatal("expired draft still readable")
	}
	if s.Update(id, Registration{Nome: "Ana"}) {
		t.Fatal("expired draft still updatable")
	}
}

func TestUnknownDraft(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("unknown draft reported present")
	}
}
