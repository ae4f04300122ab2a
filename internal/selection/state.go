// Package selection implements the category -> subcategory selection flow
// that leads into complaint creation. Transitions are pure: each returns
// the next State and, when the flow ends, a HandOff.
package selection

import "github.com/nhle/complaint-desk/internal/model"

// Phase is the step the flow is in.
type Phase int

const (
	None Phase = iota
	ChoosingCategory
	ChoosingSubCategory
)

func (p Phase) String() string {
	switch p {
	case ChoosingCategory:
		return "choosing-category"
	case ChoosingSubCategory:
		return "choosing-subcategory"
	default:
		return "none"
	}
}

// Intent is the entry point that started the flow.
type Intent string

const (
	IntentNewComplaint Intent = "new-complaint"
	IntentBrowse       Intent = "browse"
)

// HandOff is the result of a completed selection, consumed by complaint
// creation.
type HandOff struct {
	CategoryID    string
	SubCategoryID string
	Intent        Intent
}

// State is the selection flow state. The zero value is None.
type State struct {
	Phase  Phase
	Chosen *model.Category
	Intent Intent
}

// Start opens the flow at the category step, discarding any earlier
// choice.
func (s State) Start(intent Intent) State {
	return State{Phase: ChoosingCategory, Intent: intent}
}

// SelectCategory handles a category click. A category without
// subcategories ends the flow at once with a hand-off carrying only the
// category id; otherwise the flow moves to the subcategory step.
//
// It is valid at the category step and from None, where it covers a
// direct click on a category card outside the dialog.
func (s State) SelectCategory(c model.Category) (State, *HandOff, error) {
	if s.Phase == ChoosingSubCategory {
		return s, nil, &TransitionError{Op: "SelectCategory", From: s.Phase}
	}
	if c.ID == "" {
		return s, nil, &TransitionError{Op: "SelectCategory", From: s.Phase, Reason: "category has no id"}
	}

	intent := s.Intent
	if intent == "" {
		intent = IntentNewComplaint
	}

	if !c.HasSubCategories() {
		return State{}, &HandOff{CategoryID: c.ID, Intent: intent}, nil
	}

	chosen := c.Clone()
	return State{Phase: ChoosingSubCategory, Chosen: &chosen, Intent: intent}, nil, nil
}

// SelectSubCategory ends the flow with a hand-off for the chosen category
// and sc, which must belong to it.
func (s State) SelectSubCategory(sc model.SubCategory) (State, *HandOff, error) {
	if s.Phase != ChoosingSubCategory || s.Chosen == nil {
		return s, nil, &TransitionError{Op: "SelectSubCategory", From: s.Phase}
	}
	if _, ok := s.Chosen.SubCategory(sc.ID); !ok || sc.ID == "" {
		return s, nil, &TransitionError{
			Op:     "SelectSubCategory",
			From:   s.Phase,
			Reason: "subcategory " + sc.ID + " does not belong to " + s.Chosen.ID,
		}
	}

	return State{}, &HandOff{
		CategoryID:    s.Chosen.ID,
		SubCategoryID: sc.ID,
		Intent:        s.Intent,
	}, nil
}

// Back returns from the subcategory step to the category step, keeping
// the intent. From any other phase it cancels.
func (s State) Back() State {
	if s.Phase == ChoosingSubCategory {
		return State{Phase: ChoosingCategory, Intent: s.Intent}
	}
	return s.Cancel()
}

// Cancel closes the flow from any phase.
func (s State) Cancel() State {
	return State{}
}

// Active reports whether the flow is showing.
func (s State) Active() bool {
	return s.Phase != None
}

// Title is the heading shown for the current step.
func (s State) Title() string {
	if s.Phase == ChoosingSubCategory && s.Chosen != nil {
		return "Select a subcategory in " + s.Chosen.Name
	}
	if s.Intent == IntentNewComplaint {
		return "Select a category for your new complaint"
	}
	return "Browse Categories"
}
