package validators

import "go.mongodb.org/mongo-driver/bson"

var CalendarAccountValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"provider",
			"access_token",
			"refresh_token",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"provider": bson.M{
				"bsonType": "string",
				"enum": []string{
					"google",
				},
			},

			"access_token": bson.M{
				"bsonType": "string",
			},

			"refresh_token": bson.M{
				"bsonType": "string",
			},

			"expires_at": bson.M{
				"bsonType": []string{"date", "null"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
