package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type TutorProfile struct {
	UserID       string
	Bio          string
	Subjects     []string
	Availability []string
	UpdatedAt    time.Time
}

// TutorListing is a profile joined with the tutor's display name,
// as returned by the public search.
type TutorListing struct {
	TutorID  string
	Name     string
	Bio      string
	Subjects []string
}

type RequestStatus string

const (
	StatusOpen    RequestStatus = "open"
	StatusMatched RequestStatus = "matched"
	StatusClosed  RequestStatus = "closed"
)

func (s RequestStatus) Valid() bool {
	return s == StatusOpen || s == StatusMatched || s == StatusClosed
}

// Terminal reports whether no transition may leave the status.
func (s RequestStatus) Terminal() bool {
	return s == StatusMatched || s == StatusClosed
}

type HelpRequest struct {
	ID             string
	StudentID      string
	StudentName    string
	Subject        string
	Description    string
	PreferredTimes []string
	Status         RequestStatus
	TutorID        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
