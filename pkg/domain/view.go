package domain

type ViewMode string

const (
	ModeTranslation ViewMode = "translation"
	ModeOriginal    ViewMode = "original"
	ModeSideBySide  ViewMode = "side-by-side"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ModeTranslation, ModeOriginal, ModeSideBySide:
		return ViewMode(s), nil
	case "side", "sbs":
		return ModeSideBySide, nil
	}
	return "", ErrInvalidRequest.WithMsg("unknown view mode " + s)
}

// ViewSelection is the ephemeral per-view state. Pending is sorted.
type ViewSelection struct {
	SelectedLanguage string
	Mode             ViewMode
	Pending          []string
}

func (s ViewSelection) IsPending(lang string) bool {
	for _, p := range s.Pending {
		if p == lang {
			return true
		}
	}
	return false
}
