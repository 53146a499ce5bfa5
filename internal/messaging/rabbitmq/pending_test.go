package rabbitmq

import "testing"

func TestPendingCalls_ResolveDelivers(t *testing.T) {
	p := newPendingCalls()
	ch := p.register("c1")

	if !p.resolve("c1", []byte(`{"ok":true}`)) {
		t.Fatalf("expected resolve to find the pending call")
	}
	body := <-ch
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if p.size() != 0 {
		t.Fatalf("expected empty map after resolve, got %d", p.size())
	}
}

func TestPendingCalls_ResolveUnknown(t *testing.T) {
	p := newPendingCalls()
	if p.resolve("nope", nil) {
		t.Fatalf("unknown correlation id must not resolve")
	}
}

func TestPendingCalls_ResolveTwice(t *testing.T) {
	p := newPendingCalls()
	p.register("c1")
	if !p.resolve("c1", []byte("1")) {
		t.Fatalf("first resolve should succeed")
	}
	if p.resolve("c1", []byte("2")) {
		t.Fatalf("second resolve must report unknown id")
	}
}

func TestPendingCalls_RemoveIsIdempotent(t *testing.T) {
	p := newPendingCalls()
	p.register("c1")
	p.remove("c1")
	p.remove("c1")
	if p.size() != 0 {
		t.Fatalf("expected empty map")
	}
}

func TestPendingCalls_FailAllClosesChannels(t *testing.T) {
	p := newPendingCalls()
	ch1 := p.register("a")
	ch2 := p.register("b")

	p.failAll()

	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	if p.size() != 0 {
		t.Fatalf("expected empty map after failAll")
	}
}
