package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elisha-et/TutorLink/internal/model"
	"github.com/elisha-et/TutorLink/internal/repository"
)

func seedStudent(t *testing.T, store *Store, id, name string) {
	t.Helper()
	err := store.CreateUser(context.Background(), model.User{
		ID:    id,
		Email: id + "@example.com",
		Name:  name,
	}, model.RoleStudent)
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}
}

func seedRequest(t *testing.T, store *Store, id, studentID, subject string, createdAt time.Time) {
	t.Helper()
	err := store.CreateHelpRequest(context.Background(), model.HelpRequest{
		ID:          id,
		StudentID:   studentID,
		Subject:     subject,
		Description: "help needed",
		Status:      model.StatusOpen,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := New()
	seedStudent(t, store, "student-1", "Ada")

	err := store.CreateUser(context.Background(), model.User{
		ID:    "student-2",
		Email: "student-1@example.com",
		Name:  "Impostor",
	}, model.RoleStudent)
	if !errors.Is(err, repository.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAcceptSetsTutorAndBlocksFurtherTransitions(t *testing.T) {
	store := New()
	ctx := context.Background()
	seedStudent(t, store, "student-1", "Ada")
	seedRequest(t, store, "req-1", "student-1", "Calculus I", time.Now())

	if err := store.AcceptHelpRequest(ctx, "req-1", "tutor-b"); err != nil {
		t.Fatalf("accept error: %v", err)
	}

	requests, err := store.ListRequestsByStudent(ctx, "student-1")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	got := requests[0]
	if got.Status != model.StatusMatched {
		t.Fatalf("expected matched, got %s", got.Status)
	}
	if got.TutorID == nil || *got.TutorID != "tutor-b" {
		t.Fatalf("expected tutor-b recorded, got %v", got.TutorID)
	}

	if err := store.AcceptHelpRequest(ctx, "req-1", "tutor-c"); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on second accept, got %v", err)
	}
	if err := store.DeclineHelpRequest(ctx, "req-1", "tutor-c"); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on decline after match, got %v", err)
	}

	requests, _ = store.ListRequestsByStudent(ctx, "student-1")
	if *requests[0].TutorID != "tutor-b" {
		t.Fatalf("losing tutor must not overwrite the winner")
	}
}

func TestDeclineLeavesTutorUnset(t *testing.T) {
	store := New()
	ctx := context.Background()
	seedStudent(t, store, "student-1", "Ada")
	seedRequest(t, store, "req-1", "student-1", "Physics", time.Now())

	if err := store.DeclineHelpRequest(ctx, "req-1", "tutor-b"); err != nil {
		t.Fatalf("decline error: %v", err)
	}

	requests, _ := store.ListRequestsByStudent(ctx, "student-1")
	if requests[0].Status != model.StatusClosed {
		t.Fatalf("expected closed, got %s", requests[0].Status)
	}
	if requests[0].TutorID != nil {
		t.Fatalf("declined request must not carry a tutor id")
	}
}

func TestTransitionUnknownRequest(t *testing.T) {
	store := New()
	err := store.AcceptHelpRequest(context.Background(), "missing", "tutor-b")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		store := New()
		seedStudent(t, store, "student-1", "Ada")
		seedRequest(t, store, "req-1", "student-1", "Calculus I", time.Now())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		tutors := []string{"tutor-b", "tutor-c"}
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				errs[n] = store.AcceptHelpRequest(ctx, "req-1", tutors[n])
			}(n)
		}
		wg.Wait()

		var winners, losers int
		var winner string
		for n, err := range errs {
			switch {
			case err == nil:
				winners++
				winner = tutors[n]
			case errors.Is(err, repository.ErrConflict):
				losers++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if winners != 1 || losers != 1 {
			t.Fatalf("expected exactly one winner and one conflict, got %d/%d", winners, losers)
		}

		requests, _ := store.ListRequestsByStudent(ctx, "student-1")
		if requests[0].TutorID == nil || *requests[0].TutorID != winner {
			t.Fatalf("final tutor id must equal the winner's")
		}
	}
}

func TestListRequestsByStudentIsolatesOwners(t *testing.T) {
	store := New()
	ctx := context.Background()
	seedStudent(t, store, "student-1", "Ada")
	seedStudent(t, store, "student-2", "Grace")
	base := time.Now()
	seedRequest(t, store, "req-1", "student-1", "Calculus I", base)
	seedRequest(t, store, "req-2", "student-2", "Physics", base.Add(time.Second))
	seedRequest(t, store, "req-3", "student-1", "Algebra", base.Add(2*time.Second))

	requests, err := store.ListRequestsByStudent(ctx, "student-1")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	for _, request := range requests {
		if request.StudentID != "student-1" {
			t.Fatalf("request %s belongs to %s", request.ID, request.StudentID)
		}
	}
	// Most recent first.
	if requests[0].ID != "req-3" || requests[1].ID != "req-1" {
		t.Fatalf("unexpected order: %s, %s", requests[0].ID, requests[1].ID)
	}
}

func TestListOpenRequestsSubjectFilter(t *testing.T) {
	store := New()
	ctx := context.Background()
	seedStudent(t, store, "student-1", "Ada")
	base := time.Now()
	seedRequest(t, store, "req-1", "student-1", "Calculus I", base)
	seedRequest(t, store, "req-2", "student-1", "Physics", base.Add(time.Second))
	if err := store.AcceptHelpRequest(ctx, "req-2", "tutor-b"); err != nil {
		t.Fatalf("accept error: %v", err)
	}

	open, err := store.ListOpenRequests(ctx, "")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(open) != 1 || open[0].ID != "req-1" {
		t.Fatalf("expected only req-1 open, got %d", len(open))
	}

	// Case-insensitive exact match on the trimmed subject tag.
	filtered, _ := store.ListOpenRequests(ctx, "  calculus i ")
	if len(filtered) != 1 || filtered[0].ID != "req-1" {
		t.Fatalf("expected normalized subject filter to match req-1")
	}
	none, _ := store.ListOpenRequests(ctx, "calculus")
	if len(none) != 0 {
		t.Fatalf("partial subject must not match")
	}
}

func TestSearchTutorsFiltersBySubject(t *testing.T) {
	store := New()
	ctx := context.Background()
	if err := store.CreateUser(ctx, model.User{ID: "tutor-1", Email: "t1@example.com", Name: "Eva"}, model.RoleTutor); err != nil {
		t.Fatalf("seed tutor: %v", err)
	}
	if err := store.CreateUser(ctx, model.User{ID: "tutor-2", Email: "t2@example.com", Name: "Max"}, model.RoleTutor); err != nil {
		t.Fatalf("seed tutor: %v", err)
	}
	_ = store.UpsertTutorProfile(ctx, model.TutorProfile{UserID: "tutor-1", Bio: "math", Subjects: []string{"Calculus I", "Algebra"}})
	_ = store.UpsertTutorProfile(ctx, model.TutorProfile{UserID: "tutor-2", Bio: "physics", Subjects: []string{"Physics"}})

	all, err := store.SearchTutors(ctx, "")
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(all))
	}

	math, _ := store.SearchTutors(ctx, "algebra")
	if len(math) != 1 || math[0].TutorID != "tutor-1" {
		t.Fatalf("expected subject filter to keep tutor-1 only")
	}
}
