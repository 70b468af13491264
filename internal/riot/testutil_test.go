package riot

import (
	"io"

	"github.com/sirupsen/logrus"
)

const samplePUUID = "puuid-alice"

// sampleMatchJSON is a trimmed TFT match payload with two participants
const sampleMatchJSON = `{
  "metadata": {
    "match_id": "EUW1_7000000001",
    "participants": ["puuid-alice", "puuid-bob"]
  },
  "info": {
    "game_datetime": 1735732800000,
    "game_version": "Version 14.24",
    "tft_set_number": 13,
    "participants": [
      {
        "puuid": "puuid-bob",
        "placement": 5,
        "level": 8,
        "gold_left": 2,
        "last_round": 30,
        "traits": [],
        "units": []
      },
      {
        "puuid": "puuid-alice",
        "placement": 2,
        "level": 9,
        "gold_left": 14,
        "last_round": 35,
        "traits": [
          {"name": "TFT13_Sniper", "tier_current": 2, "num_units": 4},
          {"name": "TFT13_Rebel", "tier_current": 0, "num_units": 1},
          {"name": "TFT13_Ambusher", "tier_current": 1, "num_units": 3}
        ],
        "units": [
          {"character_id": "TFT13_Jinx", "tier": 3, "itemNames": ["TFT_Item_InfinityEdge", "TFT_Item_LastWhisper"]},
          {"character_id": "TFT13_Vi", "tier": 2}
        ]
      }
    ]
  }
}`

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
