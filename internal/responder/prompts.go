// Copyright 2025 Foodie Chat Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package responder

import "fmt"

// apologyReply is posted when the model produced nothing usable.
const apologyReply = "Sorry, I'm having trouble coming up with a good answer right now. Could you try asking again?"

func systemPrompt(botDisplayName string) string {
	return fmt.Sprintf("You are %s, a friendly and enthusiastic foodie assistant in a "+
		"group chat. You love talking about restaurants, dishes, and places to eat. "+
		"Answer the user's question using the conversation context when it is relevant, "+
		"and say so honestly when you don't know. Keep replies short and conversational, "+
		"like a chat message from a friend who knows food.", botDisplayName)
}

func userPrompt(question, contextBlock string) string {
	if contextBlock == "" {
		contextBlock = "No context available."
	}
	return fmt.Sprintf("Context from earlier conversations and shared documents:\n\n%s\n\nQuestion: %s",
		contextBlock, question)
}
