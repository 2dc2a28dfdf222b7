package queue

var MessageValues = messageValues
