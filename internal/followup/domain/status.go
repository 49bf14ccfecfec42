package domain

var allowedTransitions = map[EnrollmentStatus]map[EnrollmentStatus]bool{
	EnrollmentActive: {
		EnrollmentPaused:       true,
		EnrollmentCompleted:    true,
		EnrollmentConverted:    true,
		EnrollmentUnsubscribed: true,
	},
	EnrollmentPaused: {
		EnrollmentActive:       true,
		EnrollmentConverted:    true,
		EnrollmentUnsubscribed: true,
	},
}

// IsTerminal reports whether no further steps may ever run for the status.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentConverted || s == EnrollmentUnsubscribed
}

// IsOpen reports whether the enrollment still counts against the
// one-open-enrollment-per-lead-and-sequence rule.
func (s EnrollmentStatus) IsOpen() bool {
	return s == EnrollmentActive || s == EnrollmentPaused
}

// CanTransition reports whether an enrollment may move from one status to another.
// Terminal statuses have no outgoing transitions.
func CanTransition(from, to EnrollmentStatus) bool {
	return allowedTransitions[from][to]
}

// CanSequenceTransition reports whether a template may change status.
// Archived templates stay archived.
func CanSequenceTransition(from, to SequenceStatus) bool {
	if !to.Valid() || from == SequenceArchived {
		return false
	}
	return from != to
}

var engagementRank = map[InteractionStatus]int{
	InteractionSent:      1,
	InteractionDelivered: 2,
	InteractionOpened:    3,
	InteractionClicked:   4,
}

// IsEngagementReport reports whether a status may be reported after sending.
func (s InteractionStatus) IsEngagementReport() bool {
	return s == InteractionDelivered || s == InteractionOpened || s == InteractionClicked || s == InteractionBounced
}

// CanReport reports whether an interaction in status from may move to to.
// Engagement only moves forward; failed and bounced interactions are final.
func CanReport(from, to InteractionStatus) bool {
	if from == InteractionFailed || from == InteractionBounced {
		return false
	}
	if to == InteractionBounced {
		return from == InteractionSent || from == InteractionDelivered
	}
	return engagementRank[to] > engagementRank[from]
}
