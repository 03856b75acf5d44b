package format

import (
	"reflect"
	"testing"
)

func TestSelect(t *testing.T) {
	cases := []struct {
		in   string
		want Spec
	}{
		{"Audio Only (MP3)", Audio()},
		{"Audio Only 1080p", Audio()},
		{"1080p", VideoWithAudio(1080)},
		{"720p (Video Only)", VideoOnly(720)},
		{"Best Quality", Best()},
		{"", Best()},
		{"2160p60", VideoWithAudio(2160)},
		{"v2 480p", VideoWithAudio(480)},
		{"0p", Best()},
	}
	for _, tc := range cases {
		if got := Select(tc.in); got != tc.want {
			t.Fatalf("Select(%q): expected %+v, got %+v", tc.in, tc.want, got)
		}
	}
}

func TestSelectorStrings(t *testing.T) {
	cases := []struct {
		spec Spec
		want string
	}{
		{Audio(), "bestaudio/best"},
		{VideoOnly(720), "bestvideo[height<=720]"},
		{VideoWithAudio(1080), "bestvideo[height<=1080]+bestaudio/best[height<=1080]"},
		{Best(), "bv*+ba/b"},
	}
	for _, tc := range cases {
		if got := tc.spec.Selector(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	for _, s := range []Spec{Audio(), Best(), VideoOnly(360), VideoWithAudio(1440)} {
		if got := Select(s.Descriptor()); got != s {
			t.Fatalf("round trip of %+v produced %+v", s, got)
		}
	}
}

func TestDescriptors(t *testing.T) {
	got := Descriptors([]int{720, 1080, 720, 0, 360})
	want := []string{
		"1080p", "1080p (Video Only)",
		"720p", "720p (Video Only)",
		"360p", "360p (Video Only)",
		AudioDescriptor,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := Descriptors(nil); !reflect.DeepEqual(got, []string{BestDescriptor}) {
		t.Fatalf("expected best-only menu, got %v", got)
	}
}
