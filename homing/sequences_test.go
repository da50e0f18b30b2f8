package homing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openGroup(t *testing.T, s *Session, axes []int, opts ...GroupOption) *Group {
	t.Helper()
	_, err := s.OpenPlc(11, ControllerBrick, filepath.Join(t.TempDir(), "PLC11_TEST_HM.pmc"))
	require.NoError(t, err)
	for _, axis := range axes {
		require.NoError(t, s.Motor(axis, 0))
	}
	g, err := s.OpenGroup(2, axes, opts...)
	require.NoError(t, err)
	return g
}

func TestSequenceCompositions(t *testing.T) {
	cases := []struct {
		name     string
		expected []string
	}{
		{"home_rlim", []string{"drive_to_limit", "drive_to_home", "store_position_diff", "drive_off_home", "home", "check_homed"}},
		{"home_hsw", []string{"drive_to_home", "drive_to_home", "store_position_diff", "drive_off_home", "home", "check_homed"}},
		{"home_hsw_hstop", []string{"drive_to_home", "drive_to_home", "store_position_diff", "drive_off_home", "home", "check_homed"}},
		{"home_hsw_dir", []string{"drive_off_home", "drive_to_home", "store_position_diff", "drive_off_home", "home", "check_homed"}},
		{"home_limit", []string{"drive_to_home", "store_position_diff", "drive_off_home", "disable_limits", "home", "restore_limits", "check_homed"}},
		{"home_hsw_hlim", []string{"drive_to_home", "jog_if_on_limit", "drive_to_home", "store_position_diff", "drive_off_home", "home", "check_homed"}},
		{"home_home", []string{"home", "check_homed"}},
		{"home_nothing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession(&listingRenderer{})
			g := openGroup(t, s, []int{1, 2})
			require.NoError(t, s.RunSequence(tc.name, nil))
			require.Equal(t, tc.expected, snippetNames(g))
		})
	}
}

func TestHomeRlimArguments(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1})
	require.NoError(t, s.HomeRlim())

	templates := g.Templates()
	require.Equal(t, DriveArgs{State: StatePreHomeMove}, templates[0].Args())
	require.Equal(t, DriveToHomeArgs{State: StateFastSearch, HomingDirection: true}, templates[1].Args())
	require.Equal(t, DriveArgs{State: StateFastRetrace}, templates[3].Args())
	require.Equal(t, MoveArgs{}, templates[4].Args())
}

func TestHomeHswHstopSkipsPostHome(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1}, WithPostHome(InitialPosition()))
	require.NoError(t, s.HomeHswHstop())
	names := snippetNames(g)
	require.Equal(t, "check_homed", names[len(names)-1])
	require.Equal(t, DriveToHomeArgs{State: StatePreHomeMove, WaitForDone: WaitForDone{NoFollowingErr: true}}, g.Templates()[0].Args())
}

func TestHomeNothingMarksGroup(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1}, WithPostHome(HighSoftLimit()))
	require.NoError(t, s.HomeNothing())
	require.Equal(t, "NOTHING", g.HomingType())
	require.Equal(t, []string{"drive_to_soft_limit"}, snippetNames(g))
}

func TestPostHomeDispatch(t *testing.T) {
	cases := []struct {
		post     PostHome
		snippet  string
		expected any
	}{
		{InitialPosition(), "drive_to_initial_pos", MoveArgs{WaitForDone: WaitForDone{WithLimits: true}}},
		{HighSoftLimit(), "drive_to_soft_limit", DirectionArgs{HomingDirection: true, WaitForDone: WaitForDone{WithLimits: true}}},
		{LowSoftLimit(), "drive_to_soft_limit", DirectionArgs{WaitForDone: WaitForDone{WithLimits: true}}},
		{HighHardLimit(), "drive_to_hard_limit", DriveArgs{State: StatePostHomeMove, HomingDirection: true}},
		{LowHardLimit(), "drive_to_hard_limit", DriveArgs{State: StatePostHomeMove}},
		{RelativeMove(NewDistance(250)), "drive_relative", DriveRelativeArgs{Distance: NewDistance(250), WaitForDone: WaitForDone{WithLimits: true}}},
		{MoveAndSetHome(NewDistance(-10)), "drive_relative", DriveRelativeArgs{Distance: NewDistance(-10), SetHome: true, WaitForDone: WaitForDone{WithLimits: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.post.String(), func(t *testing.T) {
			s := NewSession(&listingRenderer{})
			g := openGroup(t, s, []int{1}, WithPostHome(tc.post))
			require.NoError(t, s.PostHome())
			templates := g.Templates()
			require.Len(t, templates, 1)
			require.Equal(t, tc.snippet, templates[0].Name())
			require.Equal(t, tc.expected, templates[0].Args())
		})
	}

	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1})
	require.NoError(t, s.PostHome())
	require.Empty(t, g.Templates())
}

func TestPostHomePassesExtraArguments(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1}, WithPostHome(InitialPosition()))
	require.NoError(t, s.PostHome(WithLimits(false)))
	require.Equal(t, MoveArgs{}, g.Templates()[0].Args())
}

func TestHomeSlitsHsw(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1, 2, 3, 4})
	err := s.RunSequence("home_slits_hsw", map[string]any{"posx": 1, "negx": 2, "posy": 3, "negy": 4})
	require.NoError(t, err)

	names := snippetNames(g)
	require.Equal(t, "drive_to_limit", names[0])
	require.Equal(t, "axes[1 2]", names[1])
	require.Contains(t, names, "axes[3 4]")
	require.Equal(t, "axes[]", names[len(names)-1])
	require.Equal(t, []int{1, 2, 3, 4}, g.Axes())
}

func TestSequenceArgumentChecks(t *testing.T) {
	s := NewSession(&listingRenderer{})
	g := openGroup(t, s, []int{1, 2, 3, 4})

	require.ErrorIs(t, s.RunSequence("home_hsw", map[string]any{"posx": 1}), ErrUnknownArgument)
	require.ErrorIs(t, s.RunSequence("home_slits_hsw", map[string]any{"posx": 1}), ErrInvalidArgument)
	require.ErrorIs(t, s.RunSequence("home_slits_hsw", map[string]any{"posx": 1, "negx": 2, "posy": 3, "negy": 9}), ErrUnknownAxis)
	require.ErrorIs(t, s.RunSequence("home_sideways", nil), ErrUnknownSequence)
	require.Equal(t, []int{1, 2, 3, 4}, g.Axes())
}

func TestRegisteredSequences(t *testing.T) {
	names := RegisteredSequences()
	require.Contains(t, names, "home_rlim")
	require.Contains(t, names, "home_slits_hsw")
	require.IsIncreasing(t, names)
	require.Panics(t, func() { RegisterSequence("home_rlim", withoutArgs("home_rlim", (*Session).HomeRlim)) })
}

func TestGenerationIsReproducible(t *testing.T) {
	generate := func(path string) []byte {
		s := NewSession(&listingRenderer{})
		err := s.WithPlc(11, ControllerBrick, path, func(p *Plc) error {
			for _, axis := range []int{1, 2, 3} {
				if err := s.Motor(axis, 100*axis); err != nil {
					return err
				}
			}
			if err := s.WithGroup(2, []int{1, 2}, func(*Group) error { return s.HomeHsw() }, WithPostHome(RelativeMove(NewDistance(5)))); err != nil {
				return err
			}
			return s.WithGroup(3, []int{3}, func(*Group) error { return s.HomeLimit() })
		})
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return data
	}
	dir := t.TempDir()
	first := generate(filepath.Join(dir, "a.pmc"))
	second := generate(filepath.Join(dir, "b.pmc"))
	require.Equal(t, string(first), string(second))
}
