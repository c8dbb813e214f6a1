package app

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeyTab       = "tab"
	KeyEsc       = "esc"
	KeyEnter     = "enter"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyPgUp      = "pgup"
	KeyPgDown    = "pgdown"
	KeyRetry     = "r"
	KeyLocation  = "l"
	KeyWeather   = "w"
	KeyVoice     = "v"
	KeyVoiceChat = "ctrl+r"
	KeyDetect    = "ctrl+d"
	KeyMute      = "m"
)
