package cli

import (
	"bytes"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/stretchr/testify/suite"

	"github.com/effective-security/xoffload/acceltest"
	"github.com/effective-security/xoffload/rsaeng"
)

type testSuite struct {
	suite.Suite

	ctl *Cli
	drv *acceltest.Driver
	// Out is the output buffer
	Out bytes.Buffer
}

func (s *testSuite) SetupTest() {
	s.Out.Reset()
	s.ctl = &Cli{}
	s.drv = acceltest.New()

	s.ctl.WithErrWriter(&s.Out).
		WithWriter(&s.Out).
		WithEngine(rsaeng.NewWithDriver(s.drv, 16))

	parser, err := kong.New(s.ctl,
		kong.Name("offload-tool"),
		kong.Description("CLI tool for crypto offload devices"),
		kong.Writers(&s.Out, &s.Out),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{})
	if err != nil {
		s.FailNow("unexpected error constructing Kong: %+v", err)
	}

	_, err = parser.Parse([]string{})
	if err != nil {
		s.FailNow("unexpected error parsing: %+v", err)
	}
}

func (s *testSuite) TearDownTest() {
	_ = s.ctl.Engine().Close()
}

// HasText is a helper method to assert that the out stream contains the supplied
// text somewhere
func (s *testSuite) HasText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.Contains(outStr, t)
	}
}
