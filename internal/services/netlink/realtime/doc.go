// Package realtime fans NetLink campaign changes out to websocket clients.
//
// Writes handled by the HTTP API publish an Event on a Bus keyed by campaign.
// Each websocket connection subscribes to at most one campaign and receives
// row-level changes for dice_rolls, campaign_members and chat_messages plus
// GM broadcasts (initiative, music, member_data). The Bus is in-process by
// default; RedisBus shares channels between instances.
package realtime
