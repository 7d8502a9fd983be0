package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStaticProviderRoundRobin(t *testing.T) {
	templates := []Template{
		{ID: uuid.New(), Payload: []byte(`{"svg":"M0 0"}`)},
		{ID: uuid.New(), Payload: []byte(`{"svg":"M1 1"}`)},
	}
	p := NewStaticProvider(templates)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := p.Pick(ctx)
		if err != nil {
			t.Fatalf("Pick %d: %v", i, err)
		}
		if want := templates[i%len(templates)]; got.ID != want.ID {
			t.Errorf("Pick %d returned %s, want %s", i, got.ID, want.ID)
		}
	}
}

func TestStaticProviderEmpty(t *testing.T) {
	p := NewStaticProvider(nil)
	if _, err := p.Pick(context.Background()); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("err = %v, want ErrNoTemplate", err)
	}
}
