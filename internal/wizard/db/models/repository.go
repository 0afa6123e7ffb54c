// Package models declares the row types of both logical databases.
// JSON-valued columns are carried as raw strings; services decode them.
package models

// User is a row of the shared repository users table.
type User struct {
	ID             int64
	UserName       string
	Pass           string // bcrypt hash
	Email          string
	ProfilePicture []byte
	XP             int
	TotalXP        int
	Level          int
	Life           int // 0..100
	Coins          int
	Deaths         int
	WorkTime       int64 // seconds
	CommentsCount  int
	Championship   bool
	Administrator  bool
	Artefacts      string // JSON map slot -> artefact id
	KeepedArtefacts string // JSON list
}

// Project is a row of the shared repository projects table.
type Project struct {
	ID           int64
	Name         string
	Path         string
	Pass         string // bcrypt hash
	Image        []byte
	CreationUser string
	CreationTime int64
	FrameRate    float64
	ImageWidth   int
	ImageHeight  int
	Deadline     int64 // unix seconds
	OCIOConfig   string
}

// MachineWrap binds a machine key to its current user and project. One
// machine cannot be logged into two users at once.
type MachineWrap struct {
	ID         int64
	MachineKey string
	UserID     int64
	ProjectID  int64
}

// Quote is a user-submitted quote with crowd scores.
type Quote struct {
	ID           int64
	CreationUser string
	Content      string // <= 100 chars
	Scores       string // JSON list of ints in 0..5
	Voters       string // JSON list of user names
}

// AttackEvent is a game log row recording an artefact attack.
type AttackEvent struct {
	ID              int64
	CreationUser    string
	DestinationUser string
	Artefact        string
	Timestamp       int64
}
