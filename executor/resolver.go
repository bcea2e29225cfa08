// Package executor binds the principal a schedule execution runs as.
package executor

import (
	"sort"
	"strings"

	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// Policy names a strategy for binding an executor identity. The "fixed"
// policy carries its username inline as "fixed:<username>".
type Policy string

const (
	PolicyOwner        Policy = "owner"
	PolicyCreator      Policy = "creator"
	PolicyCreatorOwner Policy = "creator_owner"
	PolicyCurrentUser  Policy = "current_user"

	fixedPrefix = "fixed:"
)

// Resolve walks the ordered policy list and returns the username of the
// first policy that can bind an identity for the schedule.
//
// currentUser is the interactive request principal; it is empty in the
// scheduled path, where the current_user policy never binds. Failing every
// policy is fatal for the tick (report.ErrNoExecutor).
func Resolve(sched *report.Schedule, policies []string, currentUser string) (string, error) {
	for _, raw := range policies {
		if username := resolveOne(sched, raw, currentUser); username != "" {
			return username, nil
		}
	}
	return "", errors.Wrapf(report.ErrNoExecutor, "schedule %d", sched.ID)
}

func resolveOne(sched *report.Schedule, raw, currentUser string) string {
	if strings.HasPrefix(raw, fixedPrefix) {
		return strings.TrimPrefix(raw, fixedPrefix)
	}

	switch Policy(raw) {
	case PolicyOwner:
		return firstOwner(sched)
	case PolicyCreator:
		return sched.Creator
	case PolicyCreatorOwner:
		if sched.Creator == "" {
			return ""
		}
		for _, owner := range sched.Owners {
			if owner.Username == sched.Creator {
				return sched.Creator
			}
		}
		return ""
	case PolicyCurrentUser:
		return currentUser
	}
	return ""
}

// firstOwner picks the deterministic owner: smallest username.
func firstOwner(sched *report.Schedule) string {
	if len(sched.Owners) == 0 {
		return ""
	}
	usernames := make([]string, 0, len(sched.Owners))
	for _, owner := range sched.Owners {
		usernames = append(usernames, owner.Username)
	}
	sort.Strings(usernames)
	return usernames[0]
}
