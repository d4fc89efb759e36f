package browser

import (
	"github.com/colonyops/kennel/internal/core/paging"
	"github.com/colonyops/kennel/internal/core/query"
)

// CommandKind identifies what the host must do for a Command.
type CommandKind int

const (
	// FetchMore asks the host to load Fetch through the provider and report
	// the outcome with ApplyPage.
	FetchMore CommandKind = iota + 1
	// ReplaceAddress replaces the visible address with Address.
	ReplaceAddress
	// PushAddress navigates the visible address to Address.
	PushAddress
	// ScheduleSearch asks the host to call FireSearch with Search.ID once
	// Search.Delay has passed.
	ScheduleSearch
	// LookupEntity asks the host to load EntityID with FindByID and report
	// the outcome with ApplyLookup.
	LookupEntity
)

func (k CommandKind) String() string {
	switch k {
	case FetchMore:
		return "fetch-more"
	case ReplaceAddress:
		return "replace-address"
	case PushAddress:
		return "push-address"
	case ScheduleSearch:
		return "schedule-search"
	case LookupEntity:
		return "lookup-entity"
	}
	return "unknown"
}

// Command is a side effect requested by the engine.
type Command struct {
	Kind       CommandKind
	Fetch      paging.Request
	Address    string
	Search     query.Pending
	Collection string
	EntityID   string
}

// Update is the result of an engine transition.
type Update struct {
	Commands []Command
}

// Has reports whether u carries a command of the given kind.
func (u Update) Has(kind CommandKind) bool {
	for _, c := range u.Commands {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Address returns the last address command, if any.
func (u Update) Address() (string, bool) {
	for i := len(u.Commands) - 1; i >= 0; i-- {
		switch u.Commands[i].Kind {
		case ReplaceAddress, PushAddress:
			return u.Commands[i].Address, true
		}
	}
	return "", false
}

func (u *Update) add(c Command) { u.Commands = append(u.Commands, c) }

func (u *Update) merge(o Update) { u.Commands = append(u.Commands, o.Commands...) }
