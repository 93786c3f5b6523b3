package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&HeroState{},
	&PathProposal{},
	&PathPoint{},
	&TrafficFrame{},
	&TrafficAgentState{},
}

// DatabaseModelsSQLite omits nothing today; it is kept separate because the
// SQLite schema is migrated without PostGIS.
var DatabaseModelsSQLite = []interface{}{
	&Session{},
	&HeroState{},
	&PathProposal{},
	&PathPoint{},
	&TrafficFrame{},
	&TrafficAgentState{},
}

////////////////////////
// SESSION
////////////////////////

// Session is one console run over a loaded scenario.
type Session struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	Scenario  string       `json:"scenario" gorm:"size:64"`
	StartTime time.Time    `json:"startTime" gorm:"type:timestamptz"`
	EndTime   sql.NullTime `json:"endTime" gorm:"type:timestamptz"`
	Anchor    geom.Point   `json:"anchor"` // WGS84 anchor of the scene origin, empty when not georeferenced
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// HERO
////////////////////////

// HeroState is a snapshot of the supervised vehicle after a telemetry merge.
type HeroState struct {
	ID            uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     string          `json:"sessionId" gorm:"size:36;index:idx_herostate_session_id"`
	Time          time.Time       `json:"time" gorm:"type:timestamptz;index:idx_herostate_time"` // Telemetry timestamp
	Position      geom.Point      `json:"position"`                                              // Ground-plane position (x, z)
	Elevation     float64         `json:"elevation"`                                             // Scene Y
	Rotation      float64         `json:"rotation"`                                              // Heading in radians
	Velocity      sql.NullFloat64 `json:"velocity"`
	AutonomyState string          `json:"autonomyState" gorm:"size:32;index:idx_herostate_autonomy"`
	StuckReason   sql.NullString  `json:"stuckReason" gorm:"size:64"`
	BatteryLevel  sql.NullFloat64 `json:"batteryLevel"`
}

func (*HeroState) TableName() string {
	return "hero_states"
}

////////////////////////
// PATH
////////////////////////

// PathProposal is a revision of an operator path. Every change to the current
// proposal is stored as a new row so the history of edits and decisions is
// kept.
type PathProposal struct {
	ID         uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID  string          `json:"sessionId" gorm:"size:36;index:idx_pathproposal_session_id"`
	ProposalID string          `json:"proposalId" gorm:"size:36;index:idx_pathproposal_proposal_id"`
	Status     string          `json:"status" gorm:"size:16"`
	Route      geom.LineString `json:"route"`                    // Ground-plane route, empty with fewer than two points
	Points     datatypes.JSON  `json:"points" gorm:"type:jsonb"` // Points as stored by the console, ids included
	LengthM    float64         `json:"lengthM"`
	CreatedAt  time.Time       `json:"createdAt" gorm:"type:timestamptz"`
	UpdatedAt  time.Time       `json:"updatedAt" gorm:"type:timestamptz;autoUpdateTime:false"`
	PathPoints []PathPoint     `json:"-" gorm:"foreignKey:PathProposalID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*PathProposal) TableName() string {
	return "path_proposals"
}

// PathPoint is one waypoint of a stored proposal revision.
type PathPoint struct {
	PathProposalID uint       `json:"pathProposalId" gorm:"primaryKey;autoIncrement:false"`
	Seq            uint16     `json:"seq" gorm:"primaryKey;autoIncrement:false"` // Position in route order
	PointID        string     `json:"pointId" gorm:"size:36"`
	Position       geom.Point `json:"position"`
	Elevation      float64    `json:"elevation"`
}

func (*PathPoint) TableName() string {
	return "path_points"
}

////////////////////////
// TRAFFIC
////////////////////////

// TrafficFrame is a sampled simulation tick.
type TrafficFrame struct {
	ID        uint                `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID string              `json:"sessionId" gorm:"size:36;index:idx_trafficframe_session_id"`
	Tick      uint64              `json:"tick" gorm:"index:idx_trafficframe_tick"`
	Time      time.Time           `json:"time" gorm:"type:timestamptz"`
	Visible   bool                `json:"visible"`
	Halted    datatypes.JSON      `json:"halted" gorm:"type:jsonb"` // Ids of agents at risk this tick
	Agents    []TrafficAgentState `json:"agents" gorm:"foreignKey:TrafficFrameID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*TrafficFrame) TableName() string {
	return "traffic_frames"
}

// TrafficAgentState is one agent within a sampled frame.
type TrafficAgentState struct {
	TrafficFrameID uint    `json:"trafficFrameId" gorm:"primaryKey;autoIncrement:false"`
	AgentID        uint16  `json:"agentId" gorm:"primaryKey;autoIncrement:false"`
	Lane           float64 `json:"lane"`
	Direction      int8    `json:"direction"`
	Speed          float64 `json:"speed"`
	Z              float64 `json:"z"`
	Color          string  `json:"color" gorm:"size:16"`
	Model          string  `json:"model" gorm:"size:32"`
}

func (*TrafficAgentState) TableName() string {
	return "traffic_agent_states"
}
