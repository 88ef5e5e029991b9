// Package wizard models the import session as an explicit state machine.
// Sessions are immutable values: every transition returns a new Session and
// leaves the receiver untouched, so a client can keep history for free.
package wizard

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
)

// Step is a wizard position.
type Step string

const (
	StepUpload    Step = "upload"
	StepMapping   Step = "mapping"
	StepReview    Step = "review"
	StepCommitted Step = "committed"
)

// Mode is the kind of upload.
type Mode string

const (
	ModeDelimited Mode = "delimited"
	ModeArchive   Mode = "archive_with_documents"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDelimited || m == ModeArchive
}

// FileHandle identifies the uploaded file; content lives with the client.
type FileHandle struct {
	Name string
	Size int64
}

var (
	ErrNoFile           = errors.New("no file attached")
	ErrTemplateRequired = importerr.ErrTemplateRequired
)

// TransitionError reports an action that is not allowed from the current step.
type TransitionError struct {
	From   Step
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from step %s", e.Action, e.From)
}

// Session is the state of one import wizard.
type Session struct {
	step       Step
	mode       Mode
	templateID *uuid.UUID
	options    mapping.ParsingOptions
	mapping    mapping.ColumnMapping
	file       *FileHandle
}

// New starts a session at the upload step in delimited mode.
func New() Session {
	return Session{
		step:    StepUpload,
		mode:    ModeDelimited,
		options: mapping.DefaultOptions(),
		mapping: mapping.ColumnMapping{},
	}
}

func (s Session) Step() Step                      { return s.step }
func (s Session) Mode() Mode                      { return s.mode }
func (s Session) Options() mapping.ParsingOptions { return s.options }
func (s Session) Mapping() mapping.ColumnMapping  { return s.mapping.Clone() }

// TemplateID returns the selected template, if any.
func (s Session) TemplateID() (uuid.UUID, bool) {
	if s.templateID == nil {
		return uuid.Nil, false
	}
	return *s.templateID, true
}

// File returns the attached file, if any.
func (s Session) File() (FileHandle, bool) {
	if s.file == nil {
		return FileHandle{}, false
	}
	return *s.file, true
}

func (s Session) require(step Step, action string) error {
	if s.step != step {
		return &TransitionError{From: s.step, Action: action}
	}
	return nil
}

// SelectMode switches between delimited and archive uploads. The attached
// file is dropped because it was chosen for the other mode.
func (s Session) SelectMode(m Mode) (Session, error) {
	if err := s.require(StepUpload, "select mode"); err != nil {
		return s, err
	}
	if !m.Valid() {
		return s, fmt.Errorf("unknown import mode %q", m)
	}
	if m != s.mode {
		s.file = nil
	}
	s.mode = m
	return s, nil
}

// AttachFile records the chosen file.
func (s Session) AttachFile(f FileHandle) (Session, error) {
	if err := s.require(StepUpload, "attach a file"); err != nil {
		return s, err
	}
	if f.Name == "" {
		return s, ErrNoFile
	}
	s.file = &f
	return s, nil
}

// UseTemplate selects a template, or clears the selection when id is nil.
func (s Session) UseTemplate(id *uuid.UUID) (Session, error) {
	if err := s.require(StepUpload, "choose a template"); err != nil {
		return s, err
	}
	if id == nil {
		s.templateID = nil
		return s, nil
	}
	copied := *id
	s.templateID = &copied
	return s, nil
}

// SetOptions replaces the parsing options of a manual session.
func (s Session) SetOptions(o mapping.ParsingOptions) (Session, error) {
	if s.step != StepUpload && s.step != StepMapping {
		return s, &TransitionError{From: s.step, Action: "change parsing options"}
	}
	s.options = o
	return s, nil
}

// SetMapping replaces the column mapping.
func (s Session) SetMapping(m mapping.ColumnMapping) (Session, error) {
	if err := s.require(StepMapping, "edit the mapping"); err != nil {
		return s, err
	}
	s.mapping = m.Clone()
	return s, nil
}

// Next advances the wizard. From upload a template skips the mapping step;
// archive mode always needs one. From mapping the mapping must validate.
func (s Session) Next() (Session, error) {
	switch s.step {
	case StepUpload:
		if s.file == nil {
			return s, ErrNoFile
		}
		if s.templateID != nil {
			s.step = StepReview
			return s, nil
		}
		if s.mode == ModeArchive {
			return s, ErrTemplateRequired
		}
		s.step = StepMapping
		return s, nil

	case StepMapping:
		if err := mapping.Validate(s.mapping, s.options); err != nil {
			return s, err
		}
		s.step = StepReview
		return s, nil

	default:
		return s, &TransitionError{From: s.step, Action: "advance"}
	}
}

// Back returns to the previous step: review goes to mapping for manual
// delimited sessions and to upload otherwise; mapping goes to upload.
func (s Session) Back() (Session, error) {
	switch s.step {
	case StepReview:
		if s.templateID == nil && s.mode == ModeDelimited {
			s.step = StepMapping
		} else {
			s.step = StepUpload
		}
		return s, nil
	case StepMapping:
		s.step = StepUpload
		return s, nil
	default:
		return s, &TransitionError{From: s.step, Action: "go back"}
	}
}

// StartOver returns from review to upload, keeping the chosen settings.
func (s Session) StartOver() (Session, error) {
	if err := s.require(StepReview, "start over"); err != nil {
		return s, err
	}
	s.step = StepUpload
	return s, nil
}

// Commit closes the session. Committed is terminal.
func (s Session) Commit() (Session, error) {
	if err := s.require(StepReview, "commit"); err != nil {
		return s, err
	}
	s.step = StepCommitted
	return s, nil
}

// Config returns the mapping configuration preview and commit should use.
func (s Session) Config() (mapping.Config, error) {
	if s.templateID != nil {
		return mapping.Templated{TemplateID: *s.templateID}, nil
	}
	if s.mode == ModeArchive {
		return nil, ErrTemplateRequired
	}
	return mapping.Manual{Mapping: s.mapping.Clone(), Options: s.options}, nil
}
