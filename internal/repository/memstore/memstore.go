// Package memstore provides an in-memory Storage implementation for
// handler tests and dev-mode runs without Postgres.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/elisha-et/TutorLink/internal/model"
	"github.com/elisha-et/TutorLink/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]model.User
	profiles map[string]model.TutorProfile
	requests map[string]model.HelpRequest
}

func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		profiles: make(map[string]model.TutorProfile),
		requests: make(map[string]model.HelpRequest),
	}
}

var _ repository.Storage = (*Store)(nil)

func (s *Store) CreateUser(_ context.Context, user model.User, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.Roles = []model.Role{role}
	s.users[user.ID] = user
	return nil
}

// AddRole grants an additional role outside the registration flow, the
// way an operator would via SQL. Used to set up dual-role fixtures.
func (s *Store) AddRole(userID string, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok || user.HasRole(role) {
		return
	}
	user.Roles = append(user.Roles, role)
	sort.Slice(user.Roles, func(i, j int) bool { return user.Roles[i] < user.Roles[j] })
	s.users[userID] = user
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) UpsertTutorProfile(_ context.Context, profile model.TutorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = profile
	return nil
}

func (s *Store) SearchTutors(_ context.Context, subject string) ([]model.TutorListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject = repository.NormalizeSubject(subject)
	listings := []model.TutorListing{}
	for _, profile := range s.profiles {
		if subject != "" && !hasSubject(profile.Subjects, subject) {
			continue
		}
		user := s.users[profile.UserID]
		listings = append(listings, model.TutorListing{
			TutorID:  profile.UserID,
			Name:     user.Name,
			Bio:      profile.Bio,
			Subjects: append([]string(nil), profile.Subjects...),
		})
	}
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Name != listings[j].Name {
			return listings[i].Name < listings[j].Name
		}
		return listings[i].TutorID < listings[j].TutorID
	})
	return listings, nil
}

func (s *Store) CreateHelpRequest(_ context.Context, request model.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request.StudentName = s.users[request.StudentID].Name
	s.requests[request.ID] = request
	return nil
}

func (s *Store) ListRequestsByStudent(_ context.Context, studentID string) ([]model.HelpRequest, error) {
	return s.list(func(r model.HelpRequest) bool {
		return r.StudentID == studentID
	})
}

func (s *Store) ListOpenRequests(_ context.Context, subject string) ([]model.HelpRequest, error) {
	subject = repository.NormalizeSubject(subject)
	return s.list(func(r model.HelpRequest) bool {
		if r.Status != model.StatusOpen {
			return false
		}
		return subject == "" || strings.EqualFold(r.Subject, subject)
	})
}

func (s *Store) list(keep func(model.HelpRequest) bool) ([]model.HelpRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := []model.HelpRequest{}
	for _, request := range s.requests {
		if keep(request) {
			requests = append(requests, cloneRequest(request))
		}
	}
	// Most recent first, id as the stable tiebreak, matching the SQL order.
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID > requests[j].ID
	})
	return requests, nil
}

func (s *Store) AcceptHelpRequest(_ context.Context, requestID, tutorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if request.Status != model.StatusOpen {
		return repository.ErrConflict
	}
	request.Status = model.StatusMatched
	request.TutorID = &tutorID
	s.requests[requestID] = request
	return nil
}

func (s *Store) DeclineHelpRequest(_ context.Context, requestID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	if request.Status != model.StatusOpen {
		return repository.ErrConflict
	}
	request.Status = model.StatusClosed
	s.requests[requestID] = request
	return nil
}

func hasSubject(subjects []string, subject string) bool {
	for _, s := range subjects {
		if strings.EqualFold(s, subject) {
			return true
		}
	}
	return false
}

func cloneUser(user model.User) model.User {
	user.Roles = append([]model.Role(nil), user.Roles...)
	return user
}

func cloneRequest(request model.HelpRequest) model.HelpRequest {
	request.PreferredTimes = append([]string(nil), request.PreferredTimes...)
	if request.TutorID != nil {
		tutorID := *request.TutorID
		request.TutorID = &tutorID
	}
	return request
}
