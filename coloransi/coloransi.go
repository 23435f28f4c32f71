package coloransi

import (
	"fmt"
	"os"
	"strings"
)

// ColorCode holds either an SGR color number in the low byte or a 24-bit RGB
// value in the upper three bytes.
type ColorCode uint32

// ANSI color codes
const (
	Black   ColorCode = 30
	Red     ColorCode = 31
	Green   ColorCode = 32
	Yellow  ColorCode = 33
	Blue    ColorCode = 34
	Magenta ColorCode = 35
	Cyan    ColorCode = 36
	White   ColorCode = 37

	BrightBlack   ColorCode = Black + 60
	BrightRed     ColorCode = Red + 60
	BrightGreen   ColorCode = Green + 60
	BrightYellow  ColorCode = Yellow + 60
	BrightBlue    ColorCode = Blue + 60
	BrightMagenta ColorCode = Magenta + 60
	BrightCyan    ColorCode = Cyan + 60
	BrightWhite   ColorCode = White + 60

	backgroundOffset ColorCode = 10
	rgbMask          ColorCode = 0xFFFFFF00
)

func CreateRGB(r, g, b uint8) ColorCode {
	return ColorCode(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8)
}

var ColorOrange = CreateRGB(255, 140, 0)
var ColorPink = CreateRGB(255, 192, 203)
var ColorPurple = CreateRGB(128, 0, 128)
var ColorTeal = CreateRGB(0, 128, 128)
var ColorLimeGreen = CreateRGB(50, 205, 50)
var ColorIndigo = CreateRGB(75, 0, 130)
var ColorWhite = CreateRGB(255, 255, 255)

// Enabled switches escape output off globally. NO_COLOR in the environment
// disables it at startup.
var Enabled = os.Getenv("NO_COLOR") == ""

func (c ColorCode) IsRGB() bool {
	return c&rgbMask != 0
}

func (c ColorCode) rgb() (uint32, uint32, uint32) {
	return uint32(c>>24) & 0xFF, uint32(c>>16) & 0xFF, uint32(c>>8) & 0xFF
}

func (c ColorCode) foreground() string {
	if c.IsRGB() {
		r, g, b := c.rgb()
		return fmt.Sprintf("\033[38;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", c)
}

func (c ColorCode) background() string {
	if c.IsRGB() {
		r, g, b := c.rgb()
		return fmt.Sprintf("\033[48;2;%d;%d;%dm", r, g, b)
	}
	return fmt.Sprintf("\033[%dm", c+backgroundOffset)
}

func join(v []interface{}) string {
	args := make([]string, len(v))
	for i, arg := range v {
		args[i] = fmt.Sprint(arg)
	}
	return strings.Join(args, " ")
}

// Color formats the given text with the specified foreground and background colors.
func Color(fg, bg ColorCode, v ...interface{}) string {
	if !Enabled {
		return join(v)
	}
	return fg.foreground() + bg.background() + join(v) + Reset
}

// Foreground formats the given text with the specified foreground color.
func Foreground(fg ColorCode, v ...interface{}) string {
	if !Enabled {
		return join(v)
	}
	return fg.foreground() + join(v) + Reset
}

const Reset = "\033[0m"

// Strip removes SGR escape sequences.
func Strip(s string) string {
	if !strings.Contains(s, "\033") {
		return s
	}
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
