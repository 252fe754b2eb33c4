package fingerprint

// desktopChromeHeight approximates tab strip + address bar + OS taskbar.
const desktopChromeHeight = 128

// Hardware is one correlated hardware row. Rows are drawn whole.
type Hardware struct {
	Cores       int
	MemoryGB    int
	Screen      Resolution
	ScaleFactor float64
}

// Archetype is a device class with the hardware rows it may present.
type Archetype struct {
	Name            string
	Platform        string
	Mobile          bool
	UserAgentFormat string // %d is the browser major version
	BrowserMajors   []int
	Hardware        []Hardware
}

// Region pairs a timezone with a locale that is plausible for it.
type Region struct {
	Timezone       string
	Locale         string
	AcceptLanguage string
}

var desktopArchetypes = []Archetype{
	{
		Name:            "desktop-low",
		Platform:        "Win32",
		UserAgentFormat: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		BrowserMajors:   []int{128, 129, 130},
		Hardware: []Hardware{
			{Cores: 2, MemoryGB: 4, Screen: Resolution{1366, 768}, ScaleFactor: 1},
			{Cores: 4, MemoryGB: 4, Screen: Resolution{1366, 768}, ScaleFactor: 1},
			{Cores: 4, MemoryGB: 8, Screen: Resolution{1536, 864}, ScaleFactor: 1.25},
		},
	},
	{
		Name:            "desktop-mid",
		Platform:        "Win32",
		UserAgentFormat: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		BrowserMajors:   []int{129, 130, 131},
		Hardware: []Hardware{
			{Cores: 6, MemoryGB: 8, Screen: Resolution{1920, 1080}, ScaleFactor: 1},
			{Cores: 8, MemoryGB: 8, Screen: Resolution{1920, 1080}, ScaleFactor: 1},
			{Cores: 8, MemoryGB: 16, Screen: Resolution{1920, 1200}, ScaleFactor: 1},
		},
	},
	{
		Name:            "desktop-high",
		Platform:        "MacIntel",
		UserAgentFormat: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		BrowserMajors:   []int{130, 131},
		Hardware: []Hardware{
			{Cores: 10, MemoryGB: 16, Screen: Resolution{1512, 982}, ScaleFactor: 2},
			{Cores: 12, MemoryGB: 32, Screen: Resolution{1728, 1117}, ScaleFactor: 2},
			{Cores: 16, MemoryGB: 32, Screen: Resolution{2560, 1440}, ScaleFactor: 1},
		},
	},
}

var mobileArchetypes = []Archetype{
	{
		Name:            "iphone",
		Platform:        "iPhone",
		Mobile:          true,
		UserAgentFormat: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/%d.0.0.0 Mobile/15E148 Safari/604.1",
		BrowserMajors:   []int{129, 130},
		Hardware: []Hardware{
			{Cores: 6, MemoryGB: 4, Screen: Resolution{390, 844}, ScaleFactor: 3},
			{Cores: 6, MemoryGB: 6, Screen: Resolution{393, 852}, ScaleFactor: 3},
		},
	},
	{
		Name:            "android-mid",
		Platform:        "Linux armv8l",
		Mobile:          true,
		UserAgentFormat: "Mozilla/5.0 (Linux; Android 13; SM-A546B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Mobile Safari/537.36",
		BrowserMajors:   []int{128, 129, 130},
		Hardware: []Hardware{
			{Cores: 8, MemoryGB: 4, Screen: Resolution{384, 854}, ScaleFactor: 2.8125},
			{Cores: 8, MemoryGB: 6, Screen: Resolution{412, 915}, ScaleFactor: 2.625},
		},
	},
	{
		Name:            "android-high",
		Platform:        "Linux armv8l",
		Mobile:          true,
		UserAgentFormat: "Mozilla/5.0 (Linux; Android 14; Pixel 8 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Mobile Safari/537.36",
		BrowserMajors:   []int{130, 131},
		Hardware: []Hardware{
			{Cores: 9, MemoryGB: 8, Screen: Resolution{448, 998}, ScaleFactor: 3},
		},
	},
}

var regions = []Region{
	{Timezone: "America/New_York", Locale: "en-US", AcceptLanguage: "en-US,en;q=0.9"},
	{Timezone: "America/Chicago", Locale: "en-US", AcceptLanguage: "en-US,en;q=0.9"},
	{Timezone: "America/Los_Angeles", Locale: "en-US", AcceptLanguage: "en-US,en;q=0.9"},
	{Timezone: "America/Toronto", Locale: "en-CA", AcceptLanguage: "en-CA,en;q=0.9,fr-CA;q=0.7"},
	{Timezone: "Europe/London", Locale: "en-GB", AcceptLanguage: "en-GB,en;q=0.9"},
	{Timezone: "Europe/Berlin", Locale: "de-DE", AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8"},
	{Timezone: "Europe/Paris", Locale: "fr-FR", AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8"},
	{Timezone: "Asia/Kolkata", Locale: "en-IN", AcceptLanguage: "en-IN,en;q=0.9,hi;q=0.8"},
	{Timezone: "Australia/Sydney", Locale: "en-AU", AcceptLanguage: "en-AU,en;q=0.9"},
}
