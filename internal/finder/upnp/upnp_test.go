package upnp

import "testing"

func TestAsciiOnlyStripsNonASCII(t *testing.T) {
	t.Parallel()

	got := asciiOnly("Café Møvie 日本語")
	want := "Caf Mvie "
	if got != want {
		t.Errorf("asciiOnly = %q, want %q", got, want)
	}
}

func lastChangeEvent(status string) []byte {
	return []byte(`<Event xmlns="urn:schemas-upnp-org:metadata-1-0/AVT/">` +
		`<InstanceID val="0"><TransportStatus val="` + status + `"/></InstanceID></Event>`)
}

func TestParsePlayerStatusOKReachesPlaying(t *testing.T) {
	t.Parallel()

	if got := parsePlayerStatus(lastChangeEvent("OK")); got != statusPlaying {
		t.Errorf("status = %v, want statusPlaying", got)
	}
}

func TestParsePlayerStatusStoppedIsImmediate(t *testing.T) {
	t.Parallel()

	if got := parsePlayerStatus(lastChangeEvent("STOPPED")); got != statusStopped {
		t.Errorf("status = %v, want statusStopped", got)
	}
}

func TestParsePlayerStatusErrorOccurred(t *testing.T) {
	t.Parallel()

	if got := parsePlayerStatus(lastChangeEvent("ERROR_OCCURRED")); got != statusError {
		t.Errorf("status = %v, want statusError", got)
	}
}

func TestParsePlayerStatusUnknownValueIsNothing(t *testing.T) {
	t.Parallel()

	if got := parsePlayerStatus(lastChangeEvent("TRANSITIONING")); got != statusNothing {
		t.Errorf("status = %v, want statusNothing", got)
	}
}

func TestParsePlayerStatusMalformedBodyIsNothing(t *testing.T) {
	t.Parallel()

	if got := parsePlayerStatus([]byte("not xml at all")); got != statusNothing {
		t.Errorf("status = %v, want statusNothing", got)
	}
}
