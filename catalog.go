package main

import (
	"fmt"
	"sort"
	"strings"
)

// Faction is the top-level team a role plays for
type Faction string

const (
	FactionMafia   Faction = "Mafia"
	FactionTown    Faction = "Town"
	FactionNeutral Faction = "Neutral"
)

// Factions in the fixed order the win evaluator checks them
var allFactions = []Faction{FactionMafia, FactionTown, FactionNeutral}

// Alignment sub-classifies a role within its faction
type Alignment string

const (
	AlignCrowd         Alignment = "Crowd"
	AlignInvestigative Alignment = "Investigative"
	AlignProtective    Alignment = "Protective"
	AlignKilling       Alignment = "Killing"
	AlignSupport       Alignment = "Support"
	AlignDeception     Alignment = "Deception"
	AlignEvil          Alignment = "Evil"
	AlignChaos         Alignment = "Chaos"
	AlignBenign        Alignment = "Benign"
	AlignTyrant        Alignment = "Tyrant"
)

var allAlignments = []Alignment{
	AlignCrowd, AlignInvestigative, AlignProtective, AlignKilling, AlignSupport,
	AlignDeception, AlignEvil, AlignChaos, AlignBenign, AlignTyrant,
}

// Immunity protects a role from a class of abilities
type Immunity string

const (
	ImmuneRoleblock Immunity = "Roleblock"
	ImmuneControl   Immunity = "Control"
)

// Goal is the win-condition tag of a role
type Goal string

const (
	GoalEliminateOtherFactions        Goal = "EliminateOtherFactions"
	GoalSurviveEliminateOtherFactions Goal = "SurviveEliminateOtherFactions"
	GoalSurvive                       Goal = "Survive"
	GoalSurviveWhileFactionLoses      Goal = "SurviveWhileFactionLoses"
	GoalFool                          Goal = "Fool"
	GoalExecutioner                   Goal = "Executioner"
	GoalSaveWithVest                  Goal = "SaveWithVest"
)

// AbilityType groups abilities by how they interact, and decides their priority
type AbilityType string

const (
	TypeProtection    AbilityType = "Protection"
	TypeManipulation  AbilityType = "Manipulation"
	TypeRoleblock     AbilityType = "Roleblock"
	TypeModifier      AbilityType = "Modifier"
	TypeAttacking     AbilityType = "Attacking"
	TypeMuting        AbilityType = "Muting"
	TypeInvestigative AbilityType = "Investigative"
	TypeControl       AbilityType = "Control"
	TypeSuicide       AbilityType = "Suicide"
	TypeRoleChange    AbilityType = "RoleChange"
)

// Priority returns the resolution order of an ability type. Lower resolves first.
func (t AbilityType) Priority() (int, bool) {
	switch t {
	case TypeMuting, TypeRoleChange, TypeModifier:
		return 1, true
	case TypeRoleblock, TypeControl:
		return 2, true
	case TypeProtection:
		return 3, true
	case TypeAttacking, TypeSuicide:
		return 4, true
	case TypeManipulation:
		return 5, true
	case TypeInvestigative:
		return 6, true
	}
	return 0, false
}

// EffectKind is the closed set of things an ability can do when it resolves.
// The executor switches over every kind; adding one without a handler is a bug
// caught by the exhaustiveness test.
type EffectKind int

const (
	EffectRoleblock EffectKind = iota
	EffectCautious
	EffectHeal
	EffectSelfHeal
	EffectSmith
	EffectSelfSmith
	EffectOrder
	EffectAttack
	EffectFrame
	EffectSelfFrame
	EffectFrameTarget
	EffectEvaluate
	EffectTrack
	EffectLookout
	EffectInvestigate
	EffectControl
	EffectObserve
	EffectReplace
	EffectKidnap
	EffectSilenceCurse
	effectKindCount
)

var effectKindNames = [...]string{
	"Roleblock", "Cautious", "Heal", "SelfHeal", "Smith", "SelfSmith", "Order", "Attack",
	"Frame", "SelfFrame", "FrameTarget", "Evaluate", "Track", "Lookout", "Investigate",
	"Control", "Observe", "Replace", "Kidnap", "SilenceCurse",
}

func (k EffectKind) String() string {
	if k < 0 || k >= effectKindCount {
		return fmt.Sprintf("EffectKind(%d)", int(k))
	}
	return effectKindNames[k]
}

// Phase is where an ability may be used
type Phase string

const (
	PhaseNight Phase = "Night"
	PhaseDay   Phase = "Day"
)

// Ability use caps
const (
	UsesUnlimited = -1
	UsesNone      = 0
)

// Durations are counted in days; each phase transition is half a day
const (
	DurationOneNight    = 0.5
	DurationDayAndNight = 1
	DurationIndefinite  = -1
)

// ArgSubtype constrains who an argument may name
type ArgSubtype string

const (
	SubVisiting       ArgSubtype = "Visiting"
	SubNotSelf        ArgSubtype = "NotSelf"
	SubNonMafia       ArgSubtype = "NonMafia"
	SubCertainPlayers ArgSubtype = "CertainPlayers"
)

// ArgType is the value shape of an argument. Only players exist today.
type ArgType string

const ArgPlayer ArgType = "Player"

// AbilityArg describes one argument an ability takes
type AbilityArg struct {
	Name     string
	Type     ArgType
	Subtypes []ArgSubtype
}

func (a AbilityArg) has(sub ArgSubtype) bool {
	for _, s := range a.Subtypes {
		if s == sub {
			return true
		}
	}
	return false
}

// Ability is one catalog entry
type Ability struct {
	Name        string
	Description string
	Type        AbilityType
	Uses        int
	Duration    float64
	Phase       Phase
	LimboOnly   bool
	Effects     []EffectKind
	Args        []AbilityArg
}

// Priority of the ability. Catalog validation guarantees ok.
func (a *Ability) Priority() int {
	p, _ := a.Type.Priority()
	return p
}

func (a *Ability) playerArgs() int {
	n := 0
	for _, arg := range a.Args {
		if arg.Type == ArgPlayer {
			n++
		}
	}
	return n
}

// Role is one catalog entry
type Role struct {
	Name        string
	Description string
	Faction     Faction
	Alignment   Alignment
	Attack      int
	Defense     int
	Immunities  []Immunity
	Goal        Goal
	Unique      bool
	Abilities   []string
}

// Immune reports whether the role ignores the given class of ability
func (r *Role) Immune(im Immunity) bool {
	for _, i := range r.Immunities {
		if i == im {
			return true
		}
	}
	return false
}

// WinKey is what the role's side win is recorded under: the faction for
// Mafia and Town, the role name for neutrals.
func (r *Role) WinKey() string {
	if r.Faction == FactionMafia || r.Faction == FactionTown {
		return string(r.Faction)
	}
	return r.Name
}

// FactionAlignment renders e.g. "Neutral Killing"
func (r *Role) FactionAlignment() string {
	return string(r.Faction) + " " + string(r.Alignment)
}

// Catalog is the validated, read-only role and ability table
type Catalog struct {
	roles     map[string]*Role
	abilities map[string]*Ability
	order     []string
}

// NewCatalog validates the definitions and builds a catalog
func NewCatalog(roles []Role, abilities []Ability) (*Catalog, error) {
	c := &Catalog{
		roles:     make(map[string]*Role, len(roles)),
		abilities: make(map[string]*Ability, len(abilities)),
	}

	for i := range abilities {
		a := abilities[i]
		if a.Name == "" {
			return nil, fmt.Errorf("ability %d has no name", i)
		}
		if _, dup := c.abilities[a.Name]; dup {
			return nil, fmt.Errorf("duplicate ability %q", a.Name)
		}
		if _, ok := a.Type.Priority(); !ok {
			return nil, fmt.Errorf("ability %q has unknown type %q", a.Name, a.Type)
		}
		if a.Uses < UsesUnlimited {
			return nil, fmt.Errorf("ability %q has invalid uses %d", a.Name, a.Uses)
		}
		if a.Phase == "" {
			a.Phase = PhaseNight
		}
		for _, e := range a.Effects {
			if e < 0 || e >= effectKindCount {
				return nil, fmt.Errorf("ability %q has unknown effect %d", a.Name, int(e))
			}
		}
		for _, arg := range a.Args {
			if arg.Type != ArgPlayer {
				return nil, fmt.Errorf("ability %q argument %q has unknown type %q", a.Name, arg.Name, arg.Type)
			}
		}
		c.abilities[a.Name] = &a
	}

	for i := range roles {
		r := roles[i]
		if r.Name == "" {
			return nil, fmt.Errorf("role %d has no name", i)
		}
		if _, dup := c.roles[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Name)
		}
		if !validFaction(r.Faction) {
			return nil, fmt.Errorf("role %q has unknown faction %q", r.Name, r.Faction)
		}
		if !validAlignment(r.Alignment) {
			return nil, fmt.Errorf("role %q has unknown alignment %q", r.Name, r.Alignment)
		}
		if r.Attack < 0 || r.Attack > 4 || r.Defense < 0 || r.Defense > 4 {
			return nil, fmt.Errorf("role %q attack/defense out of range", r.Name)
		}
		for _, name := range r.Abilities {
			if _, ok := c.abilities[name]; !ok {
				return nil, fmt.Errorf("role %q references unknown ability %q", r.Name, name)
			}
		}
		c.roles[r.Name] = &r
		c.order = append(c.order, r.Name)
	}

	return c, nil
}

func validFaction(f Faction) bool {
	for _, x := range allFactions {
		if x == f {
			return true
		}
	}
	return false
}

func validAlignment(a Alignment) bool {
	for _, x := range allAlignments {
		if x == a {
			return true
		}
	}
	return false
}

// Role looks up a role by exact name
func (c *Catalog) Role(name string) (*Role, bool) {
	r, ok := c.roles[name]
	return r, ok
}

// Ability looks up an ability by exact name
func (c *Catalog) Ability(name string) (*Ability, bool) {
	a, ok := c.abilities[name]
	return a, ok
}

// RoleFold finds a role ignoring case
func (c *Catalog) RoleFold(name string) (*Role, bool) {
	for _, n := range c.order {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return c.roles[n], true
		}
	}
	return nil, false
}

// Roles returns every role in catalog order
func (c *Catalog) Roles() []*Role {
	out := make([]*Role, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.roles[n])
	}
	return out
}

// AbilityNames returns all ability names sorted
func (c *Catalog) AbilityNames() []string {
	names := make([]string, 0, len(c.abilities))
	for n := range c.abilities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RoleHasAbility reports whether the named role may use the named ability
func (c *Catalog) RoleHasAbility(role, ability string) bool {
	r, ok := c.roles[role]
	if !ok {
		return false
	}
	for _, a := range r.Abilities {
		if a == ability {
			return true
		}
	}
	return false
}

// Names of abilities the engine refers to directly
const (
	AbilityNothing     = "Nothing"
	AbilitySuicide     = "Suicide"
	AbilityMurder      = "Murder"
	AbilityKnife       = "Knife"
	AbilityDeathCurse  = "Death Curse"
	RoleMafioso        = "Mafioso"
	RoleGodfather      = "Godfather"
	RoleSerialKiller   = "Serial Killer"
	RoleVigilante      = "Vigilante"
	RoleFool           = "Fool"
	RoleExecutioner    = "Executioner"
	RoleTownie         = "Townie"
	perceivedFramedAs  = RoleMafioso
	unidentifiableRole = "Unidentifiable"
)

// DefaultCatalog builds the standard role set
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultRoles(), defaultAbilities())
	if err != nil {
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return c
}

func visitingPlayer(name string, extra ...ArgSubtype) AbilityArg {
	return AbilityArg{Name: name, Type: ArgPlayer, Subtypes: append([]ArgSubtype{SubVisiting}, extra...)}
}

func defaultAbilities() []Ability {
	return []Ability{
		{Name: "Heal", Description: "Heal a player to give them a powerful defense tonight.",
			Type: TypeProtection, Uses: UsesUnlimited, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectHeal}, Args: []AbilityArg{visitingPlayer("Player Healing", SubNotSelf)}},
		{Name: "Heal Self", Description: "Heal yourself to give yourself a powerful defense tonight.",
			Type: TypeProtection, Uses: 1, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectSelfHeal}},
		{Name: "Evaluate", Description: "Learn whether a player seems suspicious or innocent.",
			Type: TypeInvestigative, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectEvaluate}, Args: []AbilityArg{visitingPlayer("Player Evaluating", SubNotSelf)}},
		{Name: "Track", Description: "See who a player visits tonight.",
			Type: TypeInvestigative, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectTrack}, Args: []AbilityArg{visitingPlayer("Player Tracking", SubNotSelf)}},
		{Name: "Lookout", Description: "See who visits a player tonight.",
			Type: TypeInvestigative, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectLookout}, Args: []AbilityArg{visitingPlayer("Player Watching", SubNotSelf)}},
		{Name: "Roleblock", Description: "Stop a player from using their ability tonight.",
			Type: TypeRoleblock, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectRoleblock}, Args: []AbilityArg{visitingPlayer("Player Roleblocking", SubNotSelf)}},
		{Name: "Consort", Description: "Stop a player from using their ability tonight.",
			Type: TypeRoleblock, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectRoleblock}, Args: []AbilityArg{visitingPlayer("Player Roleblocking", SubNotSelf, SubNonMafia)}},
		{Name: "Shoot", Description: "Shoot a player you believe is not Town.",
			Type: TypeAttacking, Uses: 3, Duration: DurationOneNight,
			Effects: []EffectKind{EffectAttack}, Args: []AbilityArg{visitingPlayer("Player Shooting", SubNotSelf)}},
		{Name: "Order", Description: "Order the Mafioso to attack a player, or attack yourself if there is none.",
			Type: TypeControl, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectOrder}, Args: []AbilityArg{{Name: "Player Ordering", Type: ArgPlayer, Subtypes: []ArgSubtype{SubNonMafia}}}},
		{Name: AbilityMurder, Description: "Attack a player who is not in the Mafia.",
			Type: TypeAttacking, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectAttack}, Args: []AbilityArg{visitingPlayer("Player Killing", SubNonMafia)}},
		{Name: "Frame", Description: "Make a player look like a member of the Mafia.",
			Type: TypeManipulation, Uses: UsesUnlimited, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectFrame}, Args: []AbilityArg{visitingPlayer("Player Framing", SubNonMafia)}},
		{Name: "Investigate", Description: "Learn the exact role of a player.",
			Type: TypeInvestigative, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectInvestigate}, Args: []AbilityArg{visitingPlayer("Player Investigating", SubNonMafia)}},
		{Name: "Kidnap", Description: "Roleblock, silence and protect a player until tomorrow night.",
			Type: TypeRoleblock, Uses: UsesUnlimited, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectKidnap}, Args: []AbilityArg{visitingPlayer("Player Kidnapping", SubNonMafia, SubNotSelf)}},
		{Name: "Self Frame", Description: "Frame yourself so you look like the Mafia until investigated.",
			Type: TypeManipulation, Uses: 1, Duration: DurationIndefinite,
			Effects: []EffectKind{EffectSelfFrame}},
		{Name: "Silence Curse", Description: "Curse the town so tomorrow has no voting.",
			Type: TypeMuting, Uses: 1, Duration: DurationOneNight, LimboOnly: true,
			Effects: []EffectKind{EffectSilenceCurse}},
		{Name: AbilityDeathCurse, Description: "Kill one of the players who voted you guilty.",
			Type: TypeAttacking, Uses: 1, Duration: DurationOneNight, LimboOnly: true,
			Effects: []EffectKind{EffectAttack}, Args: []AbilityArg{visitingPlayer("Player Cursing", SubCertainPlayers)}},
		{Name: "Frame Target", Description: "Frame your target so they look like the Mafia until investigated.",
			Type: TypeManipulation, Uses: 1, Duration: DurationIndefinite,
			Effects: []EffectKind{EffectFrameTarget}},
		{Name: "Self Vest", Description: "Put on a vest to survive an attack tonight.",
			Type: TypeProtection, Uses: 4, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectSelfHeal}},
		{Name: AbilityKnife, Description: "Attack a player.",
			Type: TypeAttacking, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectAttack}, Args: []AbilityArg{visitingPlayer("Player Knifing", SubNotSelf)}},
		{Name: "Cautious", Description: "Don't attack anyone who roleblocks you tonight.",
			Type: TypeModifier, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectCautious}},
		{Name: "Smith", Description: "Give a player a vest that protects them tonight.",
			Type: TypeProtection, Uses: 3, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectSmith}, Args: []AbilityArg{visitingPlayer("Player Smithing", SubNotSelf)}},
		{Name: "Self Smith", Description: "Give yourself a vest that protects you tonight.",
			Type: TypeProtection, Uses: 1, Duration: DurationDayAndNight,
			Effects: []EffectKind{EffectSelfSmith}},
		{Name: "Control", Description: "Make a player use their ability on someone of your choice.",
			Type: TypeControl, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectControl}, Args: []AbilityArg{
				visitingPlayer("Player Controlling", SubNotSelf),
				{Name: "Player Controlled Into", Type: ArgPlayer},
			}},
		{Name: "Observe", Description: "Learn whether two players you observe are working together.",
			Type: TypeInvestigative, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectObserve}, Args: []AbilityArg{visitingPlayer("Player Observing", SubNotSelf)}},
		{Name: "Replace", Description: "Kill a player and take over their role.",
			Type: TypeAttacking, Uses: UsesUnlimited, Duration: DurationOneNight,
			Effects: []EffectKind{EffectAttack, EffectReplace}, Args: []AbilityArg{visitingPlayer("Player Replacing", SubNotSelf)}},
		{Name: AbilitySuicide, Description: "Kill yourself.",
			Type: TypeSuicide, Uses: UsesNone, Duration: DurationOneNight},
	}
}

func defaultRoles() []Role {
	return []Role{
		{Name: RoleTownie, Description: "A regular member of the town with no night ability.",
			Faction: FactionTown, Alignment: AlignCrowd, Goal: GoalEliminateOtherFactions},
		{Name: "Doctor", Description: "Heals one player a night.",
			Faction: FactionTown, Alignment: AlignProtective, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Heal", "Heal Self"}},
		{Name: "Sheriff", Description: "Evaluates players for suspicious activity.",
			Faction: FactionTown, Alignment: AlignInvestigative, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Evaluate"}},
		{Name: "Tracker", Description: "Follows players to see who they visit.",
			Faction: FactionTown, Alignment: AlignInvestigative, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Track"}},
		{Name: "Lookout", Description: "Watches players to see who visits them.",
			Faction: FactionTown, Alignment: AlignInvestigative, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Lookout"}},
		{Name: "Oracle", Description: "Observes pairs of players to learn if they share a faction.",
			Faction: FactionTown, Alignment: AlignInvestigative, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Observe"}},
		{Name: "Escort", Description: "Distracts players so they cannot act.",
			Faction: FactionTown, Alignment: AlignSupport, Goal: GoalEliminateOtherFactions,
			Immunities: []Immunity{ImmuneRoleblock}, Abilities: []string{"Roleblock"}},
		{Name: RoleVigilante, Description: "Shoots players at night, but dies of guilt after killing Town.",
			Faction: FactionTown, Alignment: AlignKilling, Attack: 1, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Shoot"}},
		{Name: RoleGodfather, Description: "Leader of the Mafia who orders the kills.",
			Faction: FactionMafia, Alignment: AlignKilling, Attack: 1, Defense: 1, Unique: true,
			Immunities: []Immunity{ImmuneControl}, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Order"}},
		{Name: RoleMafioso, Description: "Carries out the Mafia's kills.",
			Faction: FactionMafia, Alignment: AlignKilling, Attack: 1, Unique: true,
			Goal: GoalEliminateOtherFactions, Abilities: []string{AbilityMurder}},
		{Name: "Framer", Description: "Makes town members look suspicious.",
			Faction: FactionMafia, Alignment: AlignDeception, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Frame"}},
		{Name: "Consort", Description: "Distracts non-Mafia players so they cannot act.",
			Faction: FactionMafia, Alignment: AlignSupport, Goal: GoalEliminateOtherFactions,
			Immunities: []Immunity{ImmuneRoleblock}, Abilities: []string{"Consort"}},
		{Name: "Consigliere", Description: "Learns the exact role of players.",
			Faction: FactionMafia, Alignment: AlignSupport, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Investigate"}},
		{Name: "Kidnapper", Description: "Takes players away for a night and a day.",
			Faction: FactionMafia, Alignment: AlignSupport, Goal: GoalEliminateOtherFactions,
			Abilities: []string{"Kidnap"}},
		{Name: RoleFool, Description: "Wants to be lynched, then curses the town from limbo.",
			Faction: FactionNeutral, Alignment: AlignEvil, Attack: 4, Goal: GoalFool,
			Abilities: []string{"Self Frame", "Silence Curse", AbilityDeathCurse}},
		{Name: RoleExecutioner, Description: "Wants their target lynched.",
			Faction: FactionNeutral, Alignment: AlignEvil, Defense: 1, Goal: GoalExecutioner,
			Abilities: []string{"Frame Target"}},
		{Name: "Survivor", Description: "Only wants to be alive at the end.",
			Faction: FactionNeutral, Alignment: AlignBenign, Goal: GoalSurvive,
			Abilities: []string{"Self Vest"}},
		{Name: RoleSerialKiller, Description: "Kills one player each night and must be the last one standing.",
			Faction: FactionNeutral, Alignment: AlignKilling, Attack: 1, Defense: 1,
			Immunities: []Immunity{ImmuneRoleblock}, Goal: GoalSurviveEliminateOtherFactions,
			Abilities: []string{AbilityKnife, "Cautious"}},
		{Name: "Blacksmith", Description: "Wins by saving someone from death with a vest.",
			Faction: FactionNeutral, Alignment: AlignBenign, Goal: GoalSaveWithVest,
			Abilities: []string{"Smith", "Self Smith"}},
		{Name: "Witch", Description: "Controls players and wants Town to lose.",
			Faction: FactionNeutral, Alignment: AlignEvil, Goal: GoalSurviveWhileFactionLoses,
			Immunities: []Immunity{ImmuneRoleblock, ImmuneControl}, Abilities: []string{"Control"}},
		{Name: "Impersonator", Description: "Kills players and takes over their role.",
			Faction: FactionNeutral, Alignment: AlignChaos, Attack: 2, Goal: GoalSurvive,
			Abilities: []string{"Replace"}},
	}
}
