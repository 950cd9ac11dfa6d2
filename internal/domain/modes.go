package domain

// PresentationMode is how a question is shown to a player. The mode is never
// stored; every party derives it from the question position.
type PresentationMode string

const (
	NativeToForeignText      PresentationMode = "native_to_foreign_text"
	NativeAudioToForeignText PresentationMode = "native_audio_to_foreign_text"
	ForeignToNativeText      PresentationMode = "foreign_to_native_text"
	ForeignToNativeSpeech    PresentationMode = "foreign_to_native_speech"
)

// PresentationModes is the fixed rotation order. Clients must use the same order.
var PresentationModes = [...]PresentationMode{
	NativeToForeignText,
	NativeAudioToForeignText,
	ForeignToNativeText,
	ForeignToNativeSpeech,
}

// ModeForPosition maps a 1-based question position onto the mode rotation.
func ModeForPosition(position int) PresentationMode {
	n := len(PresentationModes)
	idx := (position - 1) % n
	if idx < 0 {
		idx += n
	}
	return PresentationModes[idx]
}
