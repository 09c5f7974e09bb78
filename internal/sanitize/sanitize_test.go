package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripScripts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean text", "Bonjour, comment voter ?", "Bonjour, comment voter ?"},
		{"simple block", "hi <script>alert(1)</script> there", "hi  there"},
		{"uppercase", "a<SCRIPT>x</SCRIPT>b", "ab"},
		{"mixed case with attributes", `a<ScRiPt type="text/javascript">x()</sCrIpT>b`, "ab"},
		{"multiline body", "a<script>\nline1\nline2\n</script>b", "ab"},
		{"non greedy", "<script>1</script>keep<script>2</script>", "keep"},
		{"closing tag with space", "a<script>x</script >b", "ab"},
		{"nested reassembly", "<scr<script>x</script>ipt>alert(1)</script>", ""},
		{"unterminated", "a<script>alert(1)", "a<script>alert(1)"},
		{"similar tag untouched", "<scripts>x</scripts>", "<scripts>x</scripts>"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripScripts(tt.in))
		})
	}
}

func TestStripScripts_Idempotent(t *testing.T) {
	inputs := []string{
		"plain",
		"<script>alert(1)</script>",
		"<scr<script>x</script>ipt>alert(1)</script>tail",
		"x <b>bold</b> <script src=a.js></script> y",
	}
	for _, in := range inputs {
		once := StripScripts(in)
		assert.Equal(t, once, StripScripts(once), in)
		assert.False(t, ContainsScript(once), in)
	}
}

func TestContainsScript(t *testing.T) {
	assert.True(t, ContainsScript("<script>alert(1)</script>"))
	assert.False(t, ContainsScript("no markup"))
}
